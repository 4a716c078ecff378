package control

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/memlab/memwatch/internal/control/messages"
	"github.com/memlab/memwatch/internal/control/responses"
	"github.com/memlab/memwatch/internal/reports/postdetection"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxRequestBody   = 64 << 10
	streamBufferSize = 64
)

type Handler struct {
	logger   *zap.Logger
	plane    *Plane
	gatherer prometheus.Gatherer
	version  string
}

func NewHandler(rootLogger *zap.Logger, plane *Plane, gatherer prometheus.Gatherer, version string) *Handler {
	return &Handler{
		logger:   rootLogger.Named("control-handler"),
		plane:    plane,
		gatherer: gatherer,
		version:  version,
	}
}

func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Get("/process", h.Process)
	r.Post("/monitor/start", h.Start)
	r.Post("/monitor/stop", h.Stop)
	r.Get("/settings", h.Settings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/log", h.Log)
	r.Get("/log/stream", h.LogStream)
	r.Get("/version", h.Version)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.plane.Status())
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	report, err := h.plane.Process(r.Context())
	switch {
	case err == ErrNoInspector:
		writeError(w, http.StatusNotImplemented, err.Error())
	case err == postdetection.ErrProcessNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		h.logger.Error("Failed to inspect process", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to inspect process")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	handle, err := h.plane.Start()
	if err != nil {
		h.logger.Warn("Failed to start monitoring", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &responses.Session{Message: "Monitoring started", SessionId: string(handle)})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.plane.Stop(); err != nil {
		if err == ErrNotRunning {
			writeError(w, http.StatusConflict, "monitoring is not running")
			return
		}
		h.logger.Error("Failed to stop monitoring", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to stop monitoring")
		return
	}
	writeJSON(w, http.StatusOK, &responses.Message{Message: "Monitoring stopped"})
}

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.plane.Settings())
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	update := &messages.SettingsUpdate{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := h.plane.UpdateSettings(update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &responses.Log{Lines: h.plane.History()})
}

// LogStream sends every new feed line as a server-sent event until the client
// goes away.
func (h *Handler) LogStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	lines, unsubscribe := h.plane.Subscribe(streamBufferSize)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, open := <-lines:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &responses.Version{Version: h.version})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &responses.Error{Error: message})
}
