package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/config"
	"github.com/prite36/cropsense/internal/irrigation"
	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/telemetry"
)

type PinStore interface {
	ListBySite(ctx context.Context, siteID string) ([]models.PinConfig, error)
	Add(ctx context.Context, pin *models.PinConfig) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type LivePoller interface {
	PollSite(ctx context.Context, siteID, token string) (*telemetry.Snapshot, error)
}

type PinScanner interface {
	Scan(ctx context.Context, siteID, token string, addresses []string) ([]models.PinConfig, error)
}

type PinWriter interface {
	WritePin(ctx context.Context, token, pin, value string) error
}

type LogStore interface {
	Since(ctx context.Context, siteID string, since time.Time) ([]models.DeviceLog, error)
}

type ScheduleStore interface {
	Create(ctx context.Context, sched *models.IrrigationSchedule) error
	List(ctx context.Context, siteID string) ([]models.IrrigationSchedule, error)
	Upcoming(ctx context.Context, siteID string) (*models.IrrigationSchedule, bool, error)
	Update(ctx context.Context, id uuid.UUID, patch irrigation.SchedulePatch) (*models.IrrigationSchedule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Config    *config.Config
	Pins      PinStore
	Live      LivePoller
	Scanner   PinScanner
	Device    PinWriter
	History   LogStore
	Schedules ScheduleStore
	Logger    *zap.Logger
}

type StatusResponse struct {
	Environment string `json:"environment"`
	Status      string `json:"status"`
}

// New creates a new HTTP server and sets up the routes.
func New(deps Deps) *http.Server {
	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("api server configured", zap.String("addr", addr))

	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the API routes behind CORS and the logging middleware.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "OK")
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		env := deps.Config.Environment
		if env == "" {
			env = "development"
		}
		respondJSON(w, http.StatusOK, StatusResponse{Environment: env, Status: "ok"})
	})

	r.Post("/slack/commands", h.slackCommand)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sites/{siteID}", func(r chi.Router) {
			r.Get("/pins", h.listPins)
			r.Post("/pins", h.addPin)
			r.Get("/live", h.live)
			r.Post("/discover", h.discover)
			r.Get("/history", h.history)
		})
		r.Delete("/pins/{id}", h.removePin)
		r.Post("/control", h.control)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.listSchedules)
			r.Post("/", h.createSchedule)
			r.Get("/upcoming", h.upcomingSchedule)
			r.Patch("/{id}", h.updateSchedule)
			r.Delete("/{id}", h.deleteSchedule)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", DeviceTokenHeader},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

// accessLog writes one zap entry per request.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
