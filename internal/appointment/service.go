package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/config"
	redisclient "github.com/tiny-steps/schedule-service/internal/redis"
)

const (
	numberPrefix   = "APT-"
	numberAttempts = 3

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// MaxDuration bounds a single appointment; a longer one cannot end on its start day.
const MaxDuration = 24 * time.Hour

// SystemActorID is recorded as changed_by_id for transitions the service applies on its own.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Directory answers existence questions about records owned by other services.
type Directory interface {
	DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
	SessionTypeExists(ctx context.Context, sessionTypeID uuid.UUID) (bool, error)
	PracticeExists(ctx context.Context, practiceID uuid.UUID) (bool, error)
	SlotAvailable(ctx context.Context, doctorID uuid.UUID, practiceID *uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error)
}

type CreateRequest struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	SessionTypeID    uuid.UUID
	PracticeID       *uuid.UUID
	BranchID         *uuid.UUID
	Date             time.Time
	StartTime        TimeOfDay
	Duration         time.Duration // zero means the configured default
	ConsultationType ConsultationType
	Notes            *string
}

type ChangeStatusRequest struct {
	AppointmentID              uuid.UUID
	NewStatus                  AppointmentStatus
	ChangedByID                uuid.UUID
	Reason                     *string
	CancellationType           *CancellationType
	RescheduledToAppointmentID *uuid.UUID
}

type Option func(*Service)

// WithLocker serializes creation per slot through a distributed lock.
func WithLocker(l redisclient.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithDirectory enables existence and availability checks on Create.
func WithDirectory(d Directory) Option {
	return func(s *Service) { s.dir = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	dir     Directory
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
	numbers *numberGenerator
}

func NewService(repo Repository, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		cfg:  cfg,
		log:  zerolog.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.DefaultDuration <= 0 {
		s.cfg.DefaultDuration = 30 * time.Minute
	}
	s.numbers = &numberGenerator{now: s.now}
	return s
}

// numberGenerator issues APT-<unix micros>, strictly increasing within the process.
type numberGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (g *numberGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixMicro()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return fmt.Sprintf("%s%d", numberPrefix, n)
}

// Create books a slot. The slot lock rejects most concurrent duplicates early;
// the unique index on (doctor, practice, date, start) decides the winner.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	appt, err := s.newAppointment(req)
	if err != nil {
		return nil, err
	}

	if err := s.checkDirectory(ctx, appt); err != nil {
		return nil, err
	}

	book := func(ctx context.Context) error {
		taken, err := s.repo.SlotTaken(ctx, appt.Slot())
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotAlreadyBooked
		}

		for attempt := 1; ; attempt++ {
			appt.AppointmentNumber = s.numbers.next()
			err = s.repo.Insert(ctx, appt)
			if !errors.Is(err, ErrAppointmentNumberTaken) || attempt == numberAttempts {
				return err
			}
			s.log.Warn().Str("appointment_number", appt.AppointmentNumber).Msg("appointment number collision, regenerating")
		}
	}

	if s.locker != nil {
		err = s.locker.WithSlotLock(ctx, appt.Slot().Key(), book)
		// The unique index still guards the slot, so book without the lock.
		if errors.Is(err, redisclient.ErrLockUnavailable) {
			s.log.Warn().Err(err).Str("slot", appt.Slot().Key()).Msg("slot lock unavailable, booking without it")
			err = book(ctx)
		}
	} else {
		err = book(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("appointment_number", appt.AppointmentNumber).
		Str("doctor_id", appt.DoctorID.String()).
		Str("slot", appt.Slot().Key()).
		Msg("appointment created")

	return appt, nil
}

func (s *Service) newAppointment(req CreateRequest) (*Appointment, error) {
	if req.DoctorID == uuid.Nil || req.PatientID == uuid.Nil || req.SessionTypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id, patient_id and session_type_id are required", ErrValidation)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: appointment_date is required", ErrValidation)
	}

	duration := req.Duration
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	if duration < time.Minute {
		return nil, fmt.Errorf("%w: duration must be at least one minute", ErrValidation)
	}
	if duration > MaxDuration {
		return nil, fmt.Errorf("%w: duration must not exceed one day", ErrValidation)
	}
	end, ok := req.StartTime.Add(duration)
	if !ok || end <= req.StartTime {
		return nil, ErrInvalidTimeRange
	}

	consultation := req.ConsultationType
	if consultation == "" {
		consultation = ConsultationInPerson
	}
	if !consultation.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConsultationType, consultation)
	}

	return &Appointment{
		ID:               uuid.New(),
		DoctorID:         req.DoctorID,
		PatientID:        req.PatientID,
		SessionTypeID:    req.SessionTypeID,
		PracticeID:       req.PracticeID,
		BranchID:         req.BranchID,
		AppointmentDate:  DateOnly(req.Date),
		StartTime:        req.StartTime,
		EndTime:          end,
		Status:           StatusScheduled,
		ConsultationType: consultation,
		Notes:            req.Notes,
	}, nil
}

type existenceCheck struct {
	exists func(context.Context, uuid.UUID) (bool, error)
	id     uuid.UUID
	absent error
}

func (s *Service) checkDirectory(ctx context.Context, a *Appointment) error {
	if s.dir == nil {
		return nil
	}

	checks := []existenceCheck{
		{s.dir.DoctorExists, a.DoctorID, ErrDoctorNotFound},
		{s.dir.PatientExists, a.PatientID, ErrPatientNotFound},
		{s.dir.SessionTypeExists, a.SessionTypeID, ErrSessionTypeNotFound},
	}
	if a.PracticeID != nil {
		checks = append(checks, existenceCheck{s.dir.PracticeExists, *a.PracticeID, ErrPracticeNotFound})
	}

	for _, c := range checks {
		ok, err := c.exists(ctx, c.id)
		if err != nil {
			return err
		}
		if !ok {
			return c.absent
		}
	}

	available, err := s.dir.SlotAvailable(ctx, a.DoctorID, a.PracticeID, a.AppointmentDate, a.StartTime, a.EndTime)
	if err != nil {
		return err
	}
	if !available {
		return ErrSlotUnavailable
	}
	return nil
}

// ChangeStatus validates and applies one transition, writing the appointment
// and its history row in the same transaction.
func (s *Service) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (*Appointment, error) {
	var updated *Appointment

	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByIDForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}

		if err := s.validateTransition(current, req); err != nil {
			return err
		}

		if req.NewStatus == StatusCheckedIn {
			updated, err = s.repo.MarkCheckedIn(ctx, current.ID, s.now().UTC())
		} else {
			updated, err = s.repo.UpdateStatus(ctx, current.ID, req.NewStatus)
		}
		if err != nil {
			return err
		}

		oldStatus := current.Status
		return s.repo.InsertHistory(ctx, &StatusHistory{
			AppointmentID:              current.ID,
			OldStatus:                  &oldStatus,
			NewStatus:                  req.NewStatus,
			ChangedByID:                req.ChangedByID,
			CancellationType:           req.CancellationType,
			RescheduledToAppointmentID: req.RescheduledToAppointmentID,
			Reason:                     req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	evt := s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("new_status", string(req.NewStatus)).
		Str("changed_by_id", req.ChangedByID.String())
	if req.CancellationType != nil {
		evt = evt.Str("cancellation_type", string(*req.CancellationType))
	}
	evt.Msg("appointment status changed")

	return updated, nil
}

func (s *Service) validateTransition(current *Appointment, req ChangeStatusRequest) error {
	if !req.NewStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, req.NewStatus)
	}
	if req.ChangedByID == uuid.Nil {
		return fmt.Errorf("%w: changed_by_id is required", ErrValidation)
	}

	if req.NewStatus == StatusCancelled {
		if req.CancellationType == nil {
			return ErrCancellationTypeMissing
		}
		if !req.CancellationType.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidCancellationType, *req.CancellationType)
		}
	} else if req.CancellationType != nil {
		return ErrCancellationTypeScope
	}

	rescheduled := req.CancellationType != nil && *req.CancellationType == CancellationRescheduled
	switch {
	case rescheduled && req.RescheduledToAppointmentID == nil:
		return ErrRescheduleLinkMissing
	case !rescheduled && req.RescheduledToAppointmentID != nil:
		return ErrRescheduleLinkScope
	case rescheduled && *req.RescheduledToAppointmentID == current.ID:
		return fmt.Errorf("%w: an appointment cannot be rescheduled to itself", ErrValidation)
	}

	if req.NewStatus == StatusCheckedIn && current.CheckedInAt != nil {
		return ErrAlreadyCheckedIn
	}

	if s.cfg.StrictTransitions && !CanTransition(current.Status, req.NewStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, req.NewStatus)
	}
	return nil
}

// GetHistory returns the transitions of an appointment, most recent first.
func (s *Service) GetHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}

	history, err := s.repo.ListHistory(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	if history == nil {
		history = []StatusHistory{}
	}
	return history, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) Search(ctx context.Context, f Filter, p Page) (*PageResult, error) {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrValidation)
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}

	items, total, err := s.repo.Search(ctx, f, p)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}
	if items == nil {
		items = []Appointment{}
	}
	return &PageResult{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// Update changes descriptive fields only. Status goes through ChangeStatus.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	if req.ConsultationType != nil && !req.ConsultationType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConsultationType, *req.ConsultationType)
	}
	return s.repo.UpdateDetails(ctx, id, req)
}

// Delete removes the appointment together with its history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}

// HasTimeSlotConflict reports whether an active appointment of the doctor overlaps [start, end).
func (s *Service) HasTimeSlotConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error) {
	if end <= start {
		return false, ErrInvalidTimeRange
	}
	conflict, err := s.repo.HasOverlap(ctx, doctorID, date, start, end)
	if err != nil {
		return false, fmt.Errorf("check time slot conflict: %w", err)
	}
	return conflict, nil
}

// GetExistingAppointments lists a doctor's appointments for one day. An empty
// status filter means the active statuses.
func (s *Service) GetExistingAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time, statusFilter string) ([]Appointment, error) {
	statuses, err := ParseStatusList(statusFilter)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}

	items, err := s.repo.ListByDoctorAndDate(ctx, doctorID, date, statuses)
	if err != nil {
		return nil, fmt.Errorf("list existing appointments: %w", err)
	}
	if items == nil {
		items = []Appointment{}
	}
	return items, nil
}

func (s *Service) Statistics(ctx context.Context, branchID *uuid.UUID) (*Statistics, error) {
	counts, err := s.repo.CountByStatus(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	stats := &Statistics{BranchID: branchID, ByStatus: make(map[AppointmentStatus]int, len(allStatuses))}
	for _, st := range allStatuses {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

// SweepNoShows cancels SCHEDULED appointments that ended at or before cutoff
// (date and time read as UTC wall clock) with cancellation type NO_SHOW.
// It is intended to be called by the worker periodically.
func (s *Service) SweepNoShows(ctx context.Context, cutoff time.Time) (int, error) {
	cutoff = cutoff.UTC()
	cutoffTime := TimeOfDay(cutoff.Hour()*3600 + cutoff.Minute()*60 + cutoff.Second())

	stale, err := s.repo.FindStaleScheduled(ctx, DateOnly(cutoff), cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("find stale appointments: %w", err)
	}

	noShow := CancellationNoShow
	reason := "patient did not check in"
	swept := 0
	for _, appt := range stale {
		_, err := s.ChangeStatus(ctx, ChangeStatusRequest{
			AppointmentID:    appt.ID,
			NewStatus:        StatusCancelled,
			ChangedByID:      SystemActorID,
			Reason:           &reason,
			CancellationType: &noShow,
		})
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark appointment as no-show")
			continue
		}
		swept++
	}

	return swept, nil
}

// UpdateBranch moves an appointment to another branch. Used by branch transfers.
func (s *Service) UpdateBranch(ctx context.Context, id, branchID uuid.UUID) (*Appointment, error) {
	return s.repo.UpdateBranch(ctx, id, branchID)
}

// ListIDsByBranch returns the appointments of a branch between two dates, inclusive.
func (s *Service) ListIDsByBranch(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]uuid.UUID, error) {
	return s.repo.ListIDsByBranch(ctx, branchID, from, to)
}
