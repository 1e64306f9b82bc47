package recorder

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/nobonobo/rigsim/driver"
)

var plotColors = [3]color.Color{
	color.RGBA{R: 200, A: 255},
	color.RGBA{G: 150, A: 255},
	color.RGBA{B: 200, A: 255},
}

var traceHeader = []string{"step", "t", "x", "y", "z", "vx", "vy", "vz", "ax", "ay", "az"}

// CSV logs the state of one body per exported frame.
type CSV struct {
	Body string
	f    *os.File
	w    *csv.Writer
}

// NewCSV ...
func NewCSV(filename, body string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("CSV: cannot create directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("CSV: cannot open %s: %w", filename, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(traceHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("CSV: cannot write header: %w", err)
	}
	return &CSV{Body: body, f: f, w: w}, nil
}

// ExportFrame ...
func (c *CSV) ExportFrame(step int64, s *driver.Snapshot) error {
	b, ok := s.Find(c.Body)
	if !ok {
		return fmt.Errorf("CSV: body %q not in frame", c.Body)
	}
	row := []string{strconv.FormatInt(step, 10), num(s.Time)}
	for _, v := range [][3]float64{b.Position, b.Velocity, b.Acceleration} {
		row = append(row, num(v[0]), num(v[1]), num(v[2]))
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("CSV: cannot write row: %w", err)
	}
	return nil
}

// Close ...
func (c *CSV) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// Plots collects one body's position and velocity and renders them to
// position.png and velocity.png on Close.
type Plots struct {
	Dir  string
	Body string
	t    []float64
	pos  [3][]float64
	vel  [3][]float64
}

// NewPlots ...
func NewPlots(dir, body string) *Plots {
	return &Plots{Dir: dir, Body: body}
}

// ExportFrame ...
func (p *Plots) ExportFrame(step int64, s *driver.Snapshot) error {
	b, ok := s.Find(p.Body)
	if !ok {
		return fmt.Errorf("plots: body %q not in frame", p.Body)
	}
	p.t = append(p.t, s.Time)
	for i := 0; i < 3; i++ {
		p.pos[i] = append(p.pos[i], b.Position[i])
		p.vel[i] = append(p.vel[i], b.Velocity[i])
	}
	return nil
}

// Close ...
func (p *Plots) Close() error {
	if len(p.t) == 0 {
		return nil
	}
	if err := p.save("position", "position (m)", p.pos); err != nil {
		return err
	}
	return p.save("velocity", "velocity (m/s)", p.vel)
}

func (p *Plots) save(name, ylabel string, series [3][]float64) error {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s %s", p.Body, name)
	pl.X.Label.Text = "time (s)"
	pl.Y.Label.Text = ylabel
	pl.Legend.Top = true
	for i, axis := range []string{"x", "y", "z"} {
		pts := make(plotter.XYs, len(p.t))
		for k := range p.t {
			pts[k].X = p.t[k]
			pts[k].Y = series[i][k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plots: cannot create line plot: %w", err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotColors[i]
		pl.Add(line)
		pl.Legend.Add(axis, line)
	}
	return savePlotPNG(pl, 8.0, 4.0, filepath.Join(p.Dir, name+".png"))
}

// savePlotPNG renders a plot to a PNG; width and height are in inches.
func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	png := vgimg.PngCanvas{Canvas: c}
	if _, err := png.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
