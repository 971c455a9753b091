package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows Search. Nil fields do not filter.
type Filter struct {
	DoctorID         *uuid.UUID
	PatientID        *uuid.UUID
	PracticeID       *uuid.UUID
	SessionTypeID    *uuid.UUID
	BranchID         *uuid.UUID // also matches appointments without a branch
	Date             *time.Time
	StartDate        *time.Time
	EndDate          *time.Time
	Statuses         []AppointmentStatus
	ConsultationType *ConsultationType
}

type Page struct {
	Limit  int
	Offset int
}

type PageResult struct {
	Items  []Appointment
	Total  int
	Limit  int
	Offset int
}

// UpdateRequest carries the fields a generic update may touch. Nil means unchanged.
type UpdateRequest struct {
	Notes              *string
	ConsultationType   *ConsultationType
	CancellationReason *string
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// WithinTx runs fn in a single transaction. Repository calls made with the
	// ctx handed to fn take part in it; nested calls reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Creation and lookups
	Insert(ctx context.Context, a *Appointment) error
	SlotTaken(ctx context.Context, slot Slot) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByNumber(ctx context.Context, number string) (*Appointment, error)
	Search(ctx context.Context, f Filter, p Page) ([]Appointment, int, error)

	// Generic updates
	UpdateDetails(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error)
	UpdateBranch(ctx context.Context, id, branchID uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Status writes, used only by the transition engine
	UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error)
	// MarkCheckedIn sets status CHECKED_IN and checked_in_at only while
	// checked_in_at is null; otherwise it returns ErrAlreadyCheckedIn.
	MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)

	// Conflict checks and listings
	HasOverlap(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error)
	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []AppointmentStatus) ([]Appointment, error)
	ListIDsByBranch(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]uuid.UUID, error)
	// FindStaleScheduled returns SCHEDULED appointments that ended at or before the cutoff.
	FindStaleScheduled(ctx context.Context, cutoffDate time.Time, cutoffTime TimeOfDay) ([]Appointment, error)
	CountByStatus(ctx context.Context, branchID *uuid.UUID) (map[AppointmentStatus]int, error)

	// Status history, append-only
	InsertHistory(ctx context.Context, h *StatusHistory) error
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusHistory, error)
}
