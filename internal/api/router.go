package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/appointment"
	"github.com/tiny-steps/schedule-service/internal/transfer"
)

type AppointmentService interface {
	Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetByNumber(ctx context.Context, number string) (*appointment.Appointment, error)
	Search(ctx context.Context, f appointment.Filter, p appointment.Page) (*appointment.PageResult, error)
	Update(ctx context.Context, id uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ChangeStatus(ctx context.Context, req appointment.ChangeStatusRequest) (*appointment.Appointment, error)
	GetHistory(ctx context.Context, appointmentID uuid.UUID) ([]appointment.StatusHistory, error)
	HasTimeSlotConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end appointment.TimeOfDay) (bool, error)
	GetExistingAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time, statusFilter string) ([]appointment.Appointment, error)
	Statistics(ctx context.Context, branchID *uuid.UUID) (*appointment.Statistics, error)
}

type TransferService interface {
	TransferAppointments(ctx context.Context, req transfer.Request) (*transfer.Result, error)
	TransferDoctors(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

type RouterConfig struct {
	Service  AppointmentService
	Transfer TransferService
	Logger   zerolog.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	log := cfg.Logger

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoveryMiddleware(log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		svc := cfg.Service

		// Static paths go before /{id}
		r.Post("/appointments", createAppointmentHandler(svc, log))
		r.Get("/appointments", listAppointmentsHandler(svc, log))
		r.Get("/appointments/statistics", statisticsHandler(svc, log))
		r.Get("/appointments/conflicts", conflictHandler(svc, log))
		r.Get("/appointments/number/{number}", getAppointmentByNumberHandler(svc, log))

		r.Get("/appointments/{id}", getAppointmentHandler(svc, log))
		r.Put("/appointments/{id}", updateAppointmentHandler(svc, log))
		r.Delete("/appointments/{id}", deleteAppointmentHandler(svc, log))
		r.Post("/appointments/{id}/status", changeStatusHandler(svc, log))
		r.Get("/appointments/{id}/history", historyHandler(svc, log))

		r.Get("/doctors/{doctorId}/appointments", doctorAppointmentsHandler(svc, log))

		if cfg.Transfer != nil {
			r.Post("/transfers/appointments", transferAppointmentsHandler(cfg.Transfer, log))
			r.Post("/transfers/doctors", transferDoctorsHandler(cfg.Transfer, log))
		}
	})

	return r
}
