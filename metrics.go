package sea

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MultiprocDirEnv names the directory used by the multi-process metrics
// aggregation. The workers write their metric files into it; this core
// only cleans it out after all of them have exited.
const MultiprocDirEnv = "PROMETHEUS_MULTIPROC_DIR"

// runMetricsServer starts the scrape endpoint on the master. Worker
// processes never run it; they expose their samples through the
// aggregation directory instead.
func (s *Server) runMetricsServer() {
	if !s.cfg.PrometheusScrape {
		return
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeStatus(w, s.StateInfo())
	})

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.PrometheusPort)
	go func() {
		s.logger.WithField("addr", addr).Info("starting metrics server")

		if err := http.ListenAndServe(addr, r); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server failed")
		}
	}()
}

// cleanMetricsDir removes the per-worker metric files. Runs strictly
// after every worker process has terminated, so it never races against
// a live writer.
func (s *Server) cleanMetricsDir() {
	if !s.cfg.PrometheusScrape {
		return
	}

	dir := os.Getenv(MultiprocDirEnv)
	if dir == "" {
		return
	}
	s.logger.Infof("clean prometheus dir %s", dir)

	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		s.logger.WithError(err).Warn("unable to list prometheus dir")
		return
	}
	for _, file := range matches {
		if err := os.Remove(file); err != nil {
			s.logger.WithError(err).WithField("file", file).
				Warn("unable to remove metric file")
		}
	}
}
