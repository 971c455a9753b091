package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/appointment"
	"github.com/tiny-steps/schedule-service/internal/config"
	"github.com/tiny-steps/schedule-service/internal/db"
	"github.com/tiny-steps/schedule-service/internal/logging"
)

func main() {
	doctors := flag.Int("doctors", 20, "number of doctors to spread appointments over")
	patients := flag.Int("patients", 500, "number of distinct patients")
	count := flag.Int("appointments", 2000, "appointments to create")
	days := flag.Int("days", 14, "days ahead of today to book into")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Getenv("APP_ENV"), "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	svc := appointment.NewService(appointment.NewPgRepository(pool), cfg, appointment.WithLogger(logger))

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{
		svc:      svc,
		faker:    faker,
		log:      logger,
		doctors:  uuids(*doctors),
		patients: uuids(*patients),
		sessions: uuids(5),
		branches: uuids(3),
	}

	if err := s.seedAppointments(context.Background(), *count, *days); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	logger.Info().Msg("seed complete")
}

func uuids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

type seeder struct {
	svc      *appointment.Service
	faker    *gofakeit.Faker
	log      zerolog.Logger
	doctors  []uuid.UUID
	patients []uuid.UUID
	sessions []uuid.UUID
	branches []uuid.UUID
}

func pick[T any](f *gofakeit.Faker, items []T) T {
	return items[f.Number(0, len(items)-1)]
}

func (s *seeder) seedAppointments(ctx context.Context, count, days int) error {
	s.log.Info().Int("count", count).Msg("seeding appointments")

	today := appointment.DateOnly(time.Now())
	durations := []time.Duration{15 * time.Minute, 30 * time.Minute, 45 * time.Minute, time.Hour}
	consultations := []appointment.ConsultationType{appointment.ConsultationInPerson, appointment.ConsultationTelemedicine}

	created, taken := 0, 0
	for i := 0; i < count; i++ {
		branch := pick(s.faker, s.branches)
		req := appointment.CreateRequest{
			DoctorID:         pick(s.faker, s.doctors),
			PatientID:        pick(s.faker, s.patients),
			SessionTypeID:    pick(s.faker, s.sessions),
			BranchID:         &branch,
			Date:             today.AddDate(0, 0, s.faker.Number(0, days)),
			StartTime:        appointment.NewTimeOfDay(s.faker.Number(8, 17), 15*s.faker.Number(0, 3)),
			Duration:         pick(s.faker, durations),
			ConsultationType: pick(s.faker, consultations),
		}
		if s.faker.Bool() {
			notes := s.faker.Phrase()
			req.Notes = &notes
		}

		appt, err := s.svc.Create(ctx, req)
		if errors.Is(err, appointment.ErrSlotAlreadyBooked) {
			taken++
			continue
		}
		if err != nil {
			return err
		}
		created++

		if err := s.advance(ctx, appt); err != nil {
			return err
		}

		if created%500 == 0 {
			s.log.Info().Int("created", created).Int("target", count).Msg("appointments seeded")
		}
	}

	s.log.Info().Int("created", created).Int("slot_taken", taken).Msg("appointments seeded")
	return nil
}

// advance moves a share of appointments along the lifecycle so history has rows.
func (s *seeder) advance(ctx context.Context, appt *appointment.Appointment) error {
	actor := pick(s.faker, s.doctors)
	change := func(to appointment.AppointmentStatus, ct *appointment.CancellationType) error {
		_, err := s.svc.ChangeStatus(ctx, appointment.ChangeStatusRequest{
			AppointmentID:    appt.ID,
			NewStatus:        to,
			ChangedByID:      actor,
			CancellationType: ct,
		})
		return err
	}

	switch n := s.faker.Number(1, 10); {
	case n <= 5:
		return nil
	case n <= 7:
		if err := change(appointment.StatusCheckedIn, nil); err != nil {
			return err
		}
		return change(appointment.StatusCompleted, nil)
	case n <= 8:
		return change(appointment.StatusCheckedIn, nil)
	default:
		ct := pick(s.faker, []appointment.CancellationType{
			appointment.CancellationCancelledByDoctor,
			appointment.CancellationCancelledByPatient,
		})
		return change(appointment.StatusCancelled, &ct)
	}
}
