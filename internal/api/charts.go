package api

import (
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/greensort-data/sortstream/internal/httputil"
	"github.com/greensort-data/sortstream/internal/monitoring"
	"github.com/greensort-data/sortstream/internal/waste"
)

// Debug-only HTML charts over the classification history. No auth, only
// mounted when the server runs with -debug.
func (s *Server) attachChartRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/classes", s.chartClasses)
	mux.HandleFunc("/debug/charts/trend", s.chartTrend)
	mux.HandleFunc("/debug/charts/bins", s.chartBins)
}

func (s *Server) chartClasses(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	dist, err := s.db.ClassDistribution(days, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute class distribution: %v", err))
		return
	}

	names := make([]string, len(dist))
	values := make([]opts.BarData, len(dist))
	for i, c := range dist {
		names[i] = string(c.Class)
		values[i] = opts.BarData{Value: c.Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Classifications by class",
		Subtitle: fmt.Sprintf("trailing %d days", days),
	}))
	bar.SetXAxis(names).AddSeries("count", values)
	if err := bar.Render(w); err != nil {
		monitoring.Logf("chart render failed: %v", err)
	}
}

func (s *Server) chartTrend(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r, 30)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	trend, err := s.db.TrendDaily(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute trend: %v", err))
		return
	}

	dates := make([]string, len(trend.Days))
	values := make([]opts.LineData, len(trend.Days))
	for i, d := range trend.Days {
		dates[i] = d.Date
		values[i] = opts.LineData{Value: d.Count}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Daily classifications",
		Subtitle: fmt.Sprintf("slope %.2f/day over trailing %d days", trend.SlopePerDay, days),
	}))
	line.SetXAxis(dates).AddSeries("classifications", values)
	if err := line.Render(w); err != nil {
		monitoring.Logf("chart render failed: %v", err)
	}
}

func (s *Server) chartBins(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	dist, err := s.db.BinDistribution(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute bin distribution: %v", err))
		return
	}

	values := make([]opts.PieData, len(dist))
	for i, b := range dist {
		values[i] = opts.PieData{
			Name:  string(b.Bin),
			Value: b.Count,
		}
		if info := waste.InfoFor(b.Bin); info.Color != "" {
			values[i].ItemStyle = &opts.ItemStyle{Color: info.Color}
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{
		Title:    "Classifications by bin",
		Subtitle: fmt.Sprintf("trailing %d days", days),
	}))
	pie.AddSeries("bins", values)
	if err := pie.Render(w); err != nil {
		monitoring.Logf("chart render failed: %v", err)
	}
}
