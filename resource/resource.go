package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/sparsevolume/gpucore"
)

// Resource errors.
var (
	// ErrViewIndexOutOfRange is returned by view getters for an index
	// beyond the views the resource was created with.
	ErrViewIndexOutOfRange = errors.New("resource: view index out of range")

	// ErrInvalidConfig is returned when a creation config is unusable.
	ErrInvalidConfig = errors.New("resource: invalid configuration")

	// ErrNilDevice is returned when a constructor gets no device.
	ErrNilDevice = errors.New("resource: device is nil")
)

// Resource is the capability every resource flavour exposes: indexed access
// to the views it owns, and release of the views and the allocation.
//
// Read view 0 is the view of the whole resource. For textures created with
// more than one mip, read view 1+m covers mip m only. Write view m covers
// mip m; buffers have a single write view at index 0.
type Resource interface {
	ID() gpucore.ResourceID
	ReadView(i int) (gpucore.ReadView, error)
	WriteView(i int) (gpucore.WriteView, error)
	ReadViewCount() int
	WriteViewCount() int
	Close()
}

// views is the view set shared by every flavour. The owning resource holds
// it by value; views are created once in the constructor and released in
// Close, before the allocation.
type views struct {
	dev   gpucore.Device
	id    gpucore.ResourceID
	label string

	read   []gpucore.ReadView // full view, then one per mip
	sub    []gpucore.ReadView // sub[i-1] starts at mip i
	write  []gpucore.WriteView
	closed bool
}

// ID returns the resource allocation.
func (v *views) ID() gpucore.ResourceID { return v.id }

// Label returns the debug label given at creation.
func (v *views) Label() string { return v.label }

// ReadView returns read view i. See Resource for the index layout.
func (v *views) ReadView(i int) (gpucore.ReadView, error) {
	if i < 0 || i >= len(v.read) {
		return gpucore.InvalidID, v.outOfRange("read view", i, len(v.read))
	}
	return v.read[i], nil
}

// WriteView returns write view i.
func (v *views) WriteView(i int) (gpucore.WriteView, error) {
	if i < 0 || i >= len(v.write) {
		return gpucore.InvalidID, v.outOfRange("write view", i, len(v.write))
	}
	return v.write[i], nil
}

// ReadViewCount returns the number of read views.
func (v *views) ReadViewCount() int { return len(v.read) }

// WriteViewCount returns the number of write views.
func (v *views) WriteViewCount() int { return len(v.write) }

// FullReadView returns the whole-resource read view, or the null view if
// the resource was created without BindShaderResource.
func (v *views) FullReadView() gpucore.ReadView {
	if len(v.read) == 0 {
		return gpucore.InvalidID
	}
	return v.read[0]
}

// ReadViewLevel returns the read view of mip m alone.
func (v *views) ReadViewLevel(m int) (gpucore.ReadView, error) {
	n := max(len(v.read)-1, 0)
	if m < 0 || m >= n {
		return gpucore.InvalidID, v.outOfRange("mip read view", m, n)
	}
	return v.read[1+m], nil
}

// SubReadView returns the read view covering mips i and up. Index 0 is the
// full view. Sub views exist only after CreateSubReadViews.
func (v *views) SubReadView(i int) (gpucore.ReadView, error) {
	if i == 0 {
		if len(v.read) == 0 {
			return gpucore.InvalidID, v.outOfRange("sub read view", i, 0)
		}
		return v.read[0], nil
	}
	if i < 0 || i > len(v.sub) {
		return gpucore.InvalidID, v.outOfRange("sub read view", i, len(v.sub)+1)
	}
	return v.sub[i-1], nil
}

func (v *views) outOfRange(kind string, i, n int) error {
	return fmt.Errorf("%w: %s %d of %d on %q", ErrViewIndexOutOfRange, kind, i, n, v.label)
}

func (v *views) addRead(desc *gpucore.ViewDesc) error {
	rv, err := v.dev.CreateReadView(v.id, desc)
	if err != nil {
		return fmt.Errorf("resource: create read view on %q: %w", v.label, err)
	}
	v.read = append(v.read, rv)
	return nil
}

func (v *views) addWrite(desc *gpucore.ViewDesc) error {
	wv, err := v.dev.CreateWriteView(v.id, desc)
	if err != nil {
		return fmt.Errorf("resource: create write view on %q: %w", v.label, err)
	}
	v.write = append(v.write, wv)
	return nil
}

// Close releases every view, then the allocation. Close is idempotent.
func (v *views) Close() {
	if v.closed || v.dev == nil {
		return
	}
	v.closed = true
	for _, w := range v.write {
		v.dev.ReleaseView(w)
	}
	for _, r := range v.sub {
		v.dev.ReleaseView(r)
	}
	for _, r := range v.read {
		v.dev.ReleaseView(r)
	}
	v.write, v.sub, v.read = nil, nil, nil
	if v.id != gpucore.InvalidID {
		v.dev.ReleaseResource(v.id)
	}
	slogger().Debug("resource released", "label", v.label)
}

// checkReadable rejects depth storage that shaders cannot read: a typed
// depth format bound for shader reads, or a depth-bound texture read
// through a typed format. Such a texture must be stored typeless, with a
// typed read view over it.
func checkReadable(label string, f gpucore.Format, bind gpucore.BindFlags) error {
	if !bind.Has(gpucore.BindShaderResource) {
		return nil
	}
	if f.IsDepth() {
		return fmt.Errorf("%w: %q has typed depth format %s with a shader-resource bind", ErrInvalidConfig, label, f)
	}
	if bind.Has(gpucore.BindDepthStencil) && !f.IsTypeless() {
		return fmt.Errorf("%w: %q is read and depth-bound but its format %s is not typeless", ErrInvalidConfig, label, f)
	}
	return nil
}
