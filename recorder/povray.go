// Package recorder persists simulation frames: per-frame shape dumps for
// offline POV-Ray rendering, a CSV trace and PNG plots of one body, fanned
// out behind a queue that never blocks the tick loop.
package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/mechanism"
)

// PovRay writes one data_NNN.dat file per exported frame. Each line holds
// body index, fixed flag, position, orientation (w, x, y, z), shape kind and
// shape dimensions.
type PovRay struct {
	Dir   string
	frame int
}

// NewPovRay ...
func NewPovRay(dir string) (*PovRay, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("povray: cannot create directory: %w", err)
	}
	return &PovRay{Dir: dir}, nil
}

// Frames returns the number of files written.
func (p *PovRay) Frames() int { return p.frame }

// ExportFrame ...
func (p *PovRay) ExportFrame(step int64, s *driver.Snapshot) error {
	p.frame++
	name := filepath.Join(p.Dir, fmt.Sprintf("data_%03d.dat", p.frame))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("povray: cannot open %s: %w", name, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for i, b := range s.Bodies {
		if err := w.Write(povRow(i, b)); err != nil {
			return fmt.Errorf("povray: cannot write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func povRow(i int, b driver.BodyFrame) []string {
	q := b.Orientation
	row := []string{
		strconv.Itoa(i),
		strconv.FormatBool(!b.Fixed),
		num(b.Position[0]), num(b.Position[1]), num(b.Position[2]),
		num(q.W), num(q.V[0]), num(q.V[1]), num(q.V[2]),
		b.Shape.Kind.String(),
	}
	switch b.Shape.Kind {
	case mechanism.ShapeBox:
		// half extents
		row = append(row, num(b.Shape.Lengths[0]/2), num(b.Shape.Lengths[1]/2), num(b.Shape.Lengths[2]/2))
	case mechanism.ShapeSphere:
		row = append(row, num(b.Shape.Radius))
	case mechanism.ShapeCylinder:
		row = append(row, num(b.Shape.Radius), num(b.Shape.Height/2))
	}
	return row
}

func num(v float64) string { return strconv.FormatFloat(v, 'g', 15, 64) }

// Close ...
func (p *PovRay) Close() error { return nil }
