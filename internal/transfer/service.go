// Package transfer moves appointments and doctors from one branch to another.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/appointment"
)

type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
)

const (
	itemAppointment = "APPOINTMENT"
	itemDoctor      = "DOCTOR"
)

var (
	ErrSameBranch           = fmt.Errorf("%w: source and target branches cannot be the same", appointment.ErrValidation)
	ErrSourceBranchNotFound = fmt.Errorf("%w: source branch", appointment.ErrNotFound)
	ErrTargetBranchNotFound = fmt.Errorf("%w: target branch", appointment.ErrNotFound)
	ErrNoDoctors            = fmt.Errorf("%w: doctor_ids must not be empty", appointment.ErrValidation)
	ErrWrongSourceBranch    = fmt.Errorf("%w: appointment does not belong to source branch", appointment.ErrConflict)
)

// Appointments is the slice of the appointment service a transfer needs.
type Appointments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UpdateBranch(ctx context.Context, id, branchID uuid.UUID) (*appointment.Appointment, error)
	ListIDsByBranch(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]uuid.UUID, error)
}

type Branches interface {
	BranchExists(ctx context.Context, branchID uuid.UUID) (bool, error)
}

type Doctors interface {
	TransferDoctor(ctx context.Context, doctorID, from, to uuid.UUID) error
}

type Request struct {
	SourceBranchID uuid.UUID
	TargetBranchID uuid.UUID
	AppointmentIDs []uuid.UUID
	DoctorIDs      []uuid.UUID
	// StartDate and EndDate select appointments of the source branch when
	// AppointmentIDs is empty. Both bounds are inclusive.
	StartDate *time.Time
	EndDate   *time.Time
	Reason    *string
}

type ItemResult struct {
	ItemID   uuid.UUID
	ItemType string
	Success  bool
	Error    string
}

type Result struct {
	TransferID     uuid.UUID
	Status         Status
	Message        string
	TransferredAt  time.Time
	TotalRequested int
	Successful     int
	Failed         int
	Items          []ItemResult
	Errors         []string
}

type Service struct {
	appts    Appointments
	branches Branches
	doctors  Doctors
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires a transfer service. branches and doctors may be nil when the
// collaborators are not configured; branch checks are then skipped and doctor
// transfers fail.
func NewService(appts Appointments, branches Branches, doctors Doctors, log zerolog.Logger) *Service {
	return &Service{
		appts:    appts,
		branches: branches,
		doctors:  doctors,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) validateBranches(ctx context.Context, source, target uuid.UUID) error {
	if source == uuid.Nil || target == uuid.Nil {
		return fmt.Errorf("%w: source and target branch ids are required", appointment.ErrValidation)
	}
	if source == target {
		return ErrSameBranch
	}
	if s.branches == nil {
		return nil
	}

	ok, err := s.branches.BranchExists(ctx, source)
	if err != nil {
		return fmt.Errorf("validate source branch: %w", err)
	}
	if !ok {
		return ErrSourceBranchNotFound
	}

	ok, err = s.branches.BranchExists(ctx, target)
	if err != nil {
		return fmt.Errorf("validate target branch: %w", err)
	}
	if !ok {
		return ErrTargetBranchNotFound
	}
	return nil
}

// TransferAppointments reassigns appointments to the target branch one by one.
// Item failures are reported in the result, not as an error.
func (s *Service) TransferAppointments(ctx context.Context, req Request) (*Result, error) {
	if err := s.validateBranches(ctx, req.SourceBranchID, req.TargetBranchID); err != nil {
		return nil, err
	}

	ids, err := s.appointmentIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{TransferID: uuid.New(), TransferredAt: s.now().UTC(), TotalRequested: len(ids)}
	if len(ids) == 0 {
		res.Status = StatusFailed
		res.Message = "No appointments found for transfer"
		res.Errors = []string{"no appointments found matching the criteria"}
		return res, nil
	}

	for _, id := range ids {
		item := ItemResult{ItemID: id, ItemType: itemAppointment}
		if err := s.transferAppointment(ctx, id, req); err != nil {
			item.Error = itemError(err)
			res.Errors = append(res.Errors, fmt.Sprintf("failed to transfer appointment %s: %s", id, item.Error))
		} else {
			item.Success = true
		}
		res.Items = append(res.Items, item)
	}

	res.summarize("Transfer completed")
	s.log.Info().
		Str("transfer_id", res.TransferID.String()).
		Str("source_branch_id", req.SourceBranchID.String()).
		Str("target_branch_id", req.TargetBranchID.String()).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Msg("appointment transfer finished")

	return res, nil
}

func (s *Service) appointmentIDs(ctx context.Context, req Request) ([]uuid.UUID, error) {
	if len(req.AppointmentIDs) > 0 {
		return req.AppointmentIDs, nil
	}
	if req.StartDate == nil || req.EndDate == nil {
		return nil, nil
	}
	if req.EndDate.Before(*req.StartDate) {
		return nil, fmt.Errorf("%w: end_date is before start_date", appointment.ErrValidation)
	}

	ids, err := s.appts.ListIDsByBranch(ctx, req.SourceBranchID, *req.StartDate, *req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("list branch appointments: %w", err)
	}
	return ids, nil
}

func (s *Service) transferAppointment(ctx context.Context, id uuid.UUID, req Request) error {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if appt.BranchID == nil || *appt.BranchID != req.SourceBranchID {
		return ErrWrongSourceBranch
	}

	if _, err := s.appts.UpdateBranch(ctx, id, req.TargetBranchID); err != nil {
		s.log.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to transfer appointment")
		return err
	}
	return nil
}

// TransferDoctors delegates each doctor to the doctor service.
func (s *Service) TransferDoctors(ctx context.Context, req Request) (*Result, error) {
	if err := s.validateBranches(ctx, req.SourceBranchID, req.TargetBranchID); err != nil {
		return nil, err
	}
	if len(req.DoctorIDs) == 0 {
		return nil, ErrNoDoctors
	}

	res := &Result{TransferID: uuid.New(), TransferredAt: s.now().UTC(), TotalRequested: len(req.DoctorIDs)}
	for _, id := range req.DoctorIDs {
		item := ItemResult{ItemID: id, ItemType: itemDoctor}

		var err error
		if s.doctors == nil {
			err = fmt.Errorf("%w: doctor service is not configured", appointment.ErrIntegration)
		} else {
			err = s.doctors.TransferDoctor(ctx, id, req.SourceBranchID, req.TargetBranchID)
		}

		if err != nil {
			s.log.Error().Err(err).Str("doctor_id", id.String()).Msg("failed to transfer doctor")
			item.Error = itemError(err)
			res.Errors = append(res.Errors, fmt.Sprintf("failed to transfer doctor %s: %s", id, item.Error))
		} else {
			item.Success = true
		}
		res.Items = append(res.Items, item)
	}

	res.summarize("Doctor transfer completed")
	return res, nil
}

func (r *Result) summarize(prefix string) {
	for _, item := range r.Items {
		if item.Success {
			r.Successful++
		}
	}
	r.Failed = len(r.Items) - r.Successful

	switch {
	case r.Failed == 0:
		r.Status = StatusSuccess
	case r.Successful > 0:
		r.Status = StatusPartialSuccess
	default:
		r.Status = StatusFailed
	}
	r.Message = fmt.Sprintf("%s: %d successful, %d failed", prefix, r.Successful, r.Failed)
}

func itemError(err error) string {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return "appointment not found"
	case errors.Is(err, ErrWrongSourceBranch):
		return "appointment does not belong to source branch"
	}
	return err.Error()
}
