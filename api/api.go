package api

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"hermannm.dev/eventanalytics/analytics"
	"hermannm.dev/eventanalytics/config"
)

type AnalysisAPI struct {
	client *analytics.Client
	router *http.ServeMux
	config config.API
}

// NewAnalysisAPI registers the analytics routes on the router. Metrics from the gatherer are served
// on /metrics, unless it is nil.
func NewAnalysisAPI(
	client *analytics.Client,
	gatherer prometheus.Gatherer,
	router *http.ServeMux,
	config config.API,
) AnalysisAPI {
	api := AnalysisAPI{client: client, router: router, config: config}

	api.router.HandleFunc("POST /analytics/timeseries", api.TimeSeries)
	api.router.HandleFunc("POST /analytics/extremes", api.Extremes)
	api.router.HandleFunc("POST /analytics/compare", api.Compare)
	api.router.HandleFunc("POST /analytics/trend", api.Trend)
	api.router.HandleFunc("POST /analytics/dyad", api.Dyad)
	api.router.HandleFunc("POST /analytics/top-per-group", api.TopNPerGroup)
	api.router.HandleFunc("POST /analytics/top-count", api.TopCount)

	api.router.HandleFunc("GET /budget", api.GetBudget)
	api.router.HandleFunc("POST /budget/reset", api.ResetBudget)

	if gatherer != nil {
		api.router.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return api
}

func (api AnalysisAPI) ListenAndServe() error {
	return http.ListenAndServe(fmt.Sprintf(":%s", api.config.Port), api.router)
}
