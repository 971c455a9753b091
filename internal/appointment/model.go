package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCheckedIn AppointmentStatus = "CHECKED_IN"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

var allStatuses = []AppointmentStatus{StatusScheduled, StatusCheckedIn, StatusCompleted, StatusCancelled}

// ActiveStatuses are the statuses that still occupy a doctor's time.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusCheckedIn}

func (s AppointmentStatus) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusCheckedIn
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus accepts the canonical upper-case names, case-insensitively.
func ParseStatus(raw string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q (valid statuses are %v)", ErrInvalidStatus, raw, allStatuses)
	}
	return s, nil
}

// ParseStatusList parses a comma separated status filter such as "SCHEDULED,CHECKED_IN".
// Empty input yields a nil slice.
func ParseStatusList(raw string) ([]AppointmentStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]AppointmentStatus, 0, len(parts))
	for _, p := range parts {
		s, err := ParseStatus(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusCheckedIn, StatusCompleted, StatusCancelled},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is allowed by the strict lifecycle.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CancellationType string

const (
	CancellationNoShow             CancellationType = "NO_SHOW"
	CancellationCancelledByDoctor  CancellationType = "CANCELLED_BY_DOCTOR"
	CancellationCancelledByPatient CancellationType = "CANCELLED_BY_PATIENT"
	CancellationRescheduled        CancellationType = "RESCHEDULED"
)

var allCancellationTypes = []CancellationType{
	CancellationNoShow, CancellationCancelledByDoctor, CancellationCancelledByPatient, CancellationRescheduled,
}

func (c CancellationType) Valid() bool {
	for _, v := range allCancellationTypes {
		if c == v {
			return true
		}
	}
	return false
}

func ParseCancellationType(raw string) (CancellationType, error) {
	c := CancellationType(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q (valid types are %v)", ErrInvalidCancellationType, raw, allCancellationTypes)
	}
	return c, nil
}

type ConsultationType string

const (
	ConsultationInPerson     ConsultationType = "IN_PERSON"
	ConsultationTelemedicine ConsultationType = "TELEMEDICINE"
)

func (c ConsultationType) Valid() bool {
	return c == ConsultationInPerson || c == ConsultationTelemedicine
}

func ParseConsultationType(raw string) (ConsultationType, error) {
	c := ConsultationType(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidConsultationType, raw)
	}
	return c, nil
}

type Appointment struct {
	ID                 uuid.UUID
	AppointmentNumber  string
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	SessionTypeID      uuid.UUID
	PracticeID         *uuid.UUID
	BranchID           *uuid.UUID
	AppointmentDate    time.Time // midnight UTC
	StartTime          TimeOfDay
	EndTime            TimeOfDay
	Status             AppointmentStatus
	ConsultationType   ConsultationType
	CheckedInAt        *time.Time
	Notes              *string
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EndsAt returns the absolute instant the appointment ends, in loc.
func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	d := a.AppointmentDate
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(a.EndTime.Duration())
}

// StatusHistory is one immutable audit row per applied status change.
type StatusHistory struct {
	ID                         uuid.UUID
	AppointmentID              uuid.UUID
	OldStatus                  *AppointmentStatus
	NewStatus                  AppointmentStatus
	ChangedByID                uuid.UUID
	CancellationType           *CancellationType
	RescheduledToAppointmentID *uuid.UUID
	Reason                     *string
	ChangedAt                  time.Time
}

// Slot identifies an exact bookable opportunity.
type Slot struct {
	DoctorID   uuid.UUID
	PracticeID *uuid.UUID
	Date       time.Time
	StartTime  TimeOfDay
}

func (s Slot) Key() string {
	practice := "none"
	if s.PracticeID != nil {
		practice = s.PracticeID.String()
	}
	return fmt.Sprintf("%s:%s:%s:%s", s.DoctorID, practice, s.Date.Format(time.DateOnly), s.StartTime)
}

func (a *Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, PracticeID: a.PracticeID, Date: a.AppointmentDate, StartTime: a.StartTime}
}

// Overlaps uses half-open intervals: [s1,e1) and [s2,e2) overlap iff s1 < e2 && s2 < e1.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && s2 < e1
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Statistics struct {
	BranchID *uuid.UUID
	Total    int
	ByStatus map[AppointmentStatus]int
}
