package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/files"
	"github.com/cuemby/burrow/pkg/log"
)

// NewRouter builds the HTTP surface:
//
//   - GET  /health                                     - liveness probe
//   - GET  /metrics                                    - prometheus exposition
//   - POST {prefix}/execute                            - run code
//   - POST {prefix}/upload                             - upload files (new session)
//   - GET  {prefix}/download/{session_id}/{file_id}    - download a file
//   - GET  {prefix}/files/{session_id}                 - list session files
//   - DELETE {prefix}/files/{session_id}/{file_id}     - delete a file
//   - GET  {prefix}/containers/active                  - live sandbox containers
//   - {prefix}/adapter/*                               - chat-client surface, X-Api-Key guarded
func NewRouter(cfg *config.Config, engine Executor, fm *files.Manager) http.Handler {
	h := NewHandler(cfg, engine, fm)

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Post("/execute", h.Execute)
		r.Post("/upload", h.Upload)
		r.Get("/download/{session_id}/{file_id}", h.Download)
		r.Get("/files/{session_id}", h.ListFiles)
		r.Delete("/files/{session_id}/{file_id}", h.DeleteFile)
		r.Get("/containers/active", h.Containers)

		r.Route("/adapter", func(r chi.Router) {
			r.Use(h.apiKeyAuth)
			r.Post("/exec", h.AdapterExecute)
			r.Post("/upload", h.AdapterUpload)
			r.Get("/download/{session_id}/{file_id}", h.AdapterDownload)
			r.Get("/files/{session_id}", h.AdapterListFiles)
			r.Delete("/files/{session_id}/{file_id}", h.AdapterDeleteFile)
		})
	})

	return r
}

// requestLogger logs one line per request. Probe endpoints log at debug to
// keep the output readable under scrapers.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger := log.WithComponent("api")
		evt := logger.Info()
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			evt = logger.Debug()
		}
		evt.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}
