package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
)

// AppointmentService is the engine surface the HTTP layer needs.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, actor appointment.ActorIdentity, req appointment.CreateRequest) (*appointment.AppointmentDetail, error)
	GetAppointment(ctx context.Context, code string) (*appointment.AppointmentDetail, error)
	UpdateStatus(ctx context.Context, actor appointment.ActorIdentity, code string, req appointment.UpdateStatusRequest) (*appointment.AppointmentDetail, error)
	RescheduleAppointment(ctx context.Context, actor appointment.ActorIdentity, code string, req appointment.RescheduleRequest) (*appointment.RescheduleResult, error)
	ListAuditLogs(ctx context.Context, code string) ([]appointment.AuditLog, error)
}

type RouterConfig struct {
	Service   AppointmentService
	Postgres  Pinger
	Redis     Pinger
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
	JWTSecret []byte
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/appointments", func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))

		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/{code}", getAppointmentHandler(cfg.Service))
		r.Patch("/{code}/status", updateStatusHandler(cfg.Service))
		r.Post("/{code}/reschedule", rescheduleHandler(cfg.Service))
		r.Get("/{code}/audit-logs", auditLogsHandler(cfg.Service))
	})

	return r
}
