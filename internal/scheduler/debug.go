package scheduler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rigcam/internal/httputil"
)

// echartsAssetsHost serves the echarts bundle for debug pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts the scheduler's debug endpoints under /debug/.
// Only loopback and tailnet clients may reach them.
func (s *Scheduler) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("render ticks", func() any { return s.Stats().Ticks })

	debug.HandleFunc("scheduler", "render loop counters (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	debug.HandleFunc("pose", "applied joint rotations and blend weights (JSON)", func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		if snap == nil {
			httputil.NotFound(w, "no skeleton loaded")
			return
		}
		httputil.WriteJSONOK(w, snap)
	})

	debug.HandleFunc("smoothing", "target vs applied for the traced channel", s.handleSmoothingChart)
}

// handleSmoothingChart renders the traced channel as a line chart. Ticks
// without a target leave a gap in the target series.
// Query params:
//   - last (optional) limits the chart to the most recent N samples
func (s *Scheduler) handleSmoothingChart(w http.ResponseWriter, r *http.Request) {
	trace := s.opts.Retarget.Trace
	samples := trace.Samples()
	if len(samples) == 0 {
		httputil.NotFound(w, "no smoothing trace samples")
		return
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("last")); err == nil && v > 0 && v < len(samples) {
		samples = samples[len(samples)-v:]
	}

	x := make([]string, 0, len(samples))
	target := make([]opts.LineData, 0, len(samples))
	applied := make([]opts.LineData, 0, len(samples))
	for _, smp := range samples {
		x = append(x, strconv.FormatUint(smp.Tick, 10))
		if smp.HasTarget() {
			target = append(target, opts.LineData{Value: smp.Target})
		} else {
			target = append(target, opts.LineData{Value: "-"})
		}
		applied = append(applied, opts.LineData{Value: smp.Applied})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Smoothing", Theme: "dark", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Smoothing " + trace.Channel(), Subtitle: fmt.Sprintf("ticks %d..%d", samples[0].Tick, samples[len(samples)-1].Tick)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "rad"}),
	)
	line.SetXAxis(x).
		AddSeries("target", target).
		AddSeries("applied", applied, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
