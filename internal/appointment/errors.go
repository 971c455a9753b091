package appointment

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of them,
// so callers classify with errors.Is(err, ErrConflict) and friends.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrIntegration = errors.New("integration failure")
)

var (
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("%w: doctor", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("%w: patient", ErrNotFound)
	ErrSessionTypeNotFound = fmt.Errorf("%w: session type", ErrNotFound)
	ErrPracticeNotFound    = fmt.Errorf("%w: practice", ErrNotFound)

	ErrSlotAlreadyBooked       = fmt.Errorf("%w: time slot already booked for this doctor/practice", ErrConflict)
	ErrSlotBeingBooked         = fmt.Errorf("%w: slot is currently being booked, please retry", ErrConflict)
	ErrSlotUnavailable         = fmt.Errorf("%w: slot is not available in the doctor's timing", ErrConflict)
	ErrAppointmentNumberTaken  = fmt.Errorf("%w: appointment number already issued", ErrConflict)
	ErrAlreadyCheckedIn        = fmt.Errorf("%w: appointment already checked in", ErrConflict)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	ErrInvalidStatus           = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidCancellationType = fmt.Errorf("%w: invalid cancellation type", ErrValidation)
	ErrInvalidConsultationType = fmt.Errorf("%w: invalid consultation type", ErrValidation)
	ErrCancellationTypeMissing = fmt.Errorf("%w: cancellation type is required when status is CANCELLED", ErrValidation)
	ErrCancellationTypeScope   = fmt.Errorf("%w: cancellation type only applies to CANCELLED", ErrValidation)
	ErrRescheduleLinkMissing   = fmt.Errorf("%w: rescheduled_to_appointment_id is required for RESCHEDULED", ErrValidation)
	ErrRescheduleLinkScope     = fmt.Errorf("%w: rescheduled_to_appointment_id only applies to RESCHEDULED", ErrValidation)
	ErrInvalidTimeRange        = fmt.Errorf("%w: end time must be after start time on the same day", ErrValidation)
)
