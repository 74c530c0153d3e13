// Package metrics provides Prometheus instrumentation for the custody
// services: counters for uploads, releases and custodian share
// operations, and the standalone metrics server the API servers pair
// with.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruteri/key-custody-backend/common"
)

// Label names.
const (
	LabelMode   = "mode"
	LabelStatus = "status"
	LabelReason = "reason"
)

var (
	// UploadsTotal counts payloads placed in custody, by release mode.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "uploads_total",
			Help:      "Total number of payloads placed in custody by release mode",
		},
		[]string{LabelMode},
	)

	// ReleasesTotal counts successful key releases, by release mode.
	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "releases_total",
			Help:      "Total number of completed key releases by release mode",
		},
		[]string{LabelMode},
	)

	// ReleaseFailuresTotal counts refused or failed release requests,
	// by reason: unauthorized, denied, not_found, quorum_unavailable,
	// or error.
	ReleaseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "release_failures_total",
			Help:      "Total number of refused or failed release requests by reason",
		},
		[]string{LabelReason},
	)

	// ShareDeliveriesTotal counts share deliveries at custodian nodes,
	// by status: stored or rejected.
	ShareDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "share_deliveries_total",
			Help:      "Total number of share deliveries at custodian nodes by status",
		},
		[]string{LabelStatus},
	)

	// ReencryptionsTotal counts custodian re-encryption requests, by
	// status: ok, missing, or failed.
	ReencryptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "reencryptions_total",
			Help:      "Total number of custodian re-encryption requests by status",
		},
		[]string{LabelStatus},
	)
)

// MetricsServer serves the Prometheus scrape endpoint on its own
// listener, separate from the API server.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr and publishes a
// build_info gauge under the given namespace. Collectors register
// against the default registry, so one scrape endpoint covers the
// whole process.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information, value is always 1",
		},
		[]string{"version"},
	)
	if err := prometheus.Register(buildInfo); err != nil {
		already := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &already) {
			return nil, err
		}
	} else {
		buildInfo.WithLabelValues(common.Version).Set(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
