package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler returns the exposition endpoint for the "prometheus"
// metrics exporter, which registers with the default registry. Mount it
// wherever the scrape target should live:
//
//	mux.Handle("/metrics", observe.PrometheusHandler())
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
