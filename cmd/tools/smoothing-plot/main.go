// Command smoothing-plot charts how quickly each smoothing class converges
// on a step input, one PNG per preset, and prints ticks-to-converge.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/rigcam/internal/config"
	"github.com/banshee-data/rigcam/internal/retarget"
)

var (
	outDir     = flag.String("out", ".", "Output directory for PNGs")
	configPath = flag.String("config", "", "Also chart the smoothing of this tuning config")
	ticks      = flag.Int("ticks", 90, "Ticks to simulate")
	fps        = flag.Int("fps", 60, "Render rate used to label the time axis")
	tol        = flag.Float64("tol", 0.01, "Convergence tolerance as a fraction of the step")
)

const step = 1.0

type preset struct {
	name string
	s    retarget.Smoothing
}

func presets() ([]preset, error) {
	out := []preset{
		{"default", retarget.DefaultSmoothing},
		{"responsive", retarget.ResponsiveSmoothing},
	}
	if *configPath != "" {
		cfg, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return nil, err
		}
		out = append(out, preset{"config", cfg.GetSmoothing()})
	}
	return out, nil
}

func plotCurves(title string, curves []Curve, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (ms)"
	p.Y.Label.Text = "Applied / target"

	ms := make([]float64, *ticks)
	floats.Span(ms, 1000/float64(*fps), float64(*ticks)*1000/float64(*fps))

	for i, c := range curves {
		pts := make(plotter.XYs, len(c.Applied))
		for j, v := range c.Applied {
			pts[j] = plotter.XY{X: ms[j], Y: v / step}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create %s line: %w", c.Class, err)
		}
		line.Width = vg.Points(1.5)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s α=%.2f", c.Class, c.Alpha), line)
	}

	band, err := plotter.NewLine(plotter.XYs{{X: ms[0], Y: 1 - *tol}, {X: ms[len(ms)-1], Y: 1 - *tol}})
	if err != nil {
		return err
	}
	band.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(band)

	p.Legend.Top = false
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = 10
	p.Y.Min, p.Y.Max = 0, 1.05

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

func main() {
	flag.Parse()
	if *ticks <= 0 || *fps <= 0 {
		log.Fatal("-ticks and -fps must be positive")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}
	sets, err := presets()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "preset\tclass\talpha\tticks\ttime\tovershoot")
	frame := time.Second / time.Duration(*fps)
	for _, ps := range sets {
		curves, err := stepResponse(ps.s, step, *ticks)
		if err != nil {
			log.Fatalf("%s: %v", ps.name, err)
		}
		for _, c := range curves {
			n := ticksToConverge(c.Applied, step, *tol)
			settle := "-"
			if n > 0 {
				settle = (time.Duration(n) * frame).String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\t%v\n", ps.name, c.Class, c.Alpha, n, settle, overshoots(c.Applied, step))
		}
		path := filepath.Join(*outDir, fmt.Sprintf("smoothing_%s.png", ps.name))
		if err := plotCurves(fmt.Sprintf("Step response, %s smoothing", ps.name), curves, path); err != nil {
			log.Fatalf("failed to save %s: %v", path, err)
		}
		log.Printf("wrote %s", path)
	}
	tw.Flush()
}
