package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/sparsevolume/internal/linear"
)

// ErrFormat is returned for malformed OBJ input.
var ErrFormat = errors.New("mesh: malformed obj")

// Options controls OBJ import.
type Options struct {
	// RecomputeNormals discards file normals and rebuilds them from the
	// faces.
	RecomputeNormals bool
}

// Load imports a Wavefront OBJ file.
func Load(path string) (*Mesh, error) {
	return LoadWithOptions(path, Options{})
}

// LoadWithOptions imports a Wavefront OBJ file with opts.
func LoadWithOptions(path string, opts Options) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}
	defer f.Close()

	m, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slogger().Debug("mesh: loaded", "path", path,
		"vertices", m.NumVertices(), "triangles", m.NumIndices()/3, "radius", m.Bound.Radius)
	return m, nil
}

type vertexKey struct{ pos, norm int }

type decoder struct {
	line      int
	positions []linear.Vec3
	normals   []linear.Vec3

	outPos  []linear.Vec3
	outNorm []linear.Vec3
	indices []uint32
	lookup  map[vertexKey]uint32
	missing bool
}

// Decode reads OBJ text from r. Only v, vn and f records are used; other
// records are skipped. Polygons are fan-triangulated and vertices are
// shared by (position, normal) pair.
func Decode(r io.Reader, opts Options) (*Mesh, error) {
	dec := &decoder{lookup: make(map[vertexKey]uint32)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		dec.line++
		if err := dec.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}
	if len(dec.indices) == 0 {
		return nil, fmt.Errorf("%w: no faces", ErrFormat)
	}

	normals := dec.outNorm
	if opts.RecomputeNormals || dec.missing {
		normals = computeNormals(dec.outPos, dec.indices)
	}
	return build(dec.outPos, normals, dec.indices), nil
}

func (dec *decoder) formatError(msg string) error {
	return fmt.Errorf("%w: line %d: %s", ErrFormat, dec.line, msg)
}

func (dec *decoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "v":
		v, err := dec.parseVec3(fields[1:])
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, v)
	case "vn":
		v, err := dec.parseVec3(fields[1:])
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, v)
	case "f":
		return dec.parseFace(fields[1:])
	}
	return nil
}

func (dec *decoder) parseVec3(fields []string) (linear.Vec3, error) {
	var v linear.Vec3
	if len(fields) < 3 {
		return v, dec.formatError("fewer than 3 coordinates")
	}
	for i, f := range fields[:3] {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return v, dec.formatError(err.Error())
		}
		v[i] = float32(x)
	}
	return v, nil
}

// parseFace parses f v1[/vt1][/vn1] v2[/vt2][/vn2] v3[/vt3][/vn3] ...
func (dec *decoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return dec.formatError("face with fewer than 3 vertices")
	}
	corners := make([]uint32, len(fields))
	for i, f := range fields {
		parts := strings.Split(f, "/")
		pos, err := dec.resolve(parts[0], len(dec.positions))
		if err != nil {
			return err
		}
		norm := -1
		if len(parts) == 3 && parts[2] != "" {
			if norm, err = dec.resolve(parts[2], len(dec.normals)); err != nil {
				return err
			}
		}
		corners[i] = dec.vertex(vertexKey{pos, norm})
	}
	for i := 1; i+1 < len(corners); i++ {
		dec.indices = append(dec.indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// resolve turns a 1-based or negative relative OBJ index into a 0-based
// index below n.
func (dec *decoder) resolve(s string, n int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, dec.formatError(err.Error())
	}
	i := v - 1
	if v < 0 {
		i = n + v
	}
	if v == 0 || i < 0 || i >= n {
		return 0, dec.formatError(fmt.Sprintf("index %d out of range [1, %d]", v, n))
	}
	return i, nil
}

func (dec *decoder) vertex(k vertexKey) uint32 {
	if i, ok := dec.lookup[k]; ok {
		return i
	}
	i := uint32(len(dec.outPos))
	dec.lookup[k] = i
	dec.outPos = append(dec.outPos, dec.positions[k.pos])
	if k.norm >= 0 {
		dec.outNorm = append(dec.outNorm, dec.normals[k.norm])
	} else {
		dec.outNorm = append(dec.outNorm, linear.Vec3{})
		dec.missing = true
	}
	return i
}
