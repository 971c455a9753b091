package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    AppointmentStatus
		wantErr bool
	}{
		{"SCHEDULED", StatusScheduled, false},
		{" checked_in ", StatusCheckedIn, false},
		{"Completed", StatusCompleted, false},
		{"NO_SHOW", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidStatus) || !errors.Is(err, ErrValidation) {
				t.Errorf("ParseStatus(%q) error = %v, want ErrInvalidStatus", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, %v, want %s", tt.in, got, err, tt.want)
		}
	}
}

func TestParseStatusList(t *testing.T) {
	got, err := ParseStatusList("SCHEDULED, checked_in")
	if err != nil {
		t.Fatalf("ParseStatusList() error = %v", err)
	}
	if len(got) != 2 || got[0] != StatusScheduled || got[1] != StatusCheckedIn {
		t.Errorf("ParseStatusList() = %v", got)
	}

	if got, err := ParseStatusList("  "); err != nil || got != nil {
		t.Errorf("ParseStatusList(blank) = %v, %v, want nil, nil", got, err)
	}

	if _, err := ParseStatusList("SCHEDULED,,COMPLETED"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("empty element error = %v, want ErrInvalidStatus", err)
	}
}

func TestParseCancellationType(t *testing.T) {
	for _, raw := range []string{"NO_SHOW", "cancelled_by_doctor", "CANCELLED_BY_PATIENT", "Rescheduled"} {
		if _, err := ParseCancellationType(raw); err != nil {
			t.Errorf("ParseCancellationType(%q) error = %v", raw, err)
		}
	}
	if _, err := ParseCancellationType("LATE"); !errors.Is(err, ErrInvalidCancellationType) {
		t.Errorf("error = %v, want ErrInvalidCancellationType", err)
	}
}

func TestCanTransition(t *testing.T) {
	for _, terminal := range []AppointmentStatus{StatusCompleted, StatusCancelled} {
		for _, to := range allStatuses {
			if CanTransition(terminal, to) {
				t.Errorf("CanTransition(%s, %s) = true, terminal states have no exits", terminal, to)
			}
		}
	}
	if !CanTransition(StatusScheduled, StatusCheckedIn) || !CanTransition(StatusCheckedIn, StatusCompleted) {
		t.Error("forward lifecycle must be allowed")
	}
	if CanTransition(StatusCheckedIn, StatusScheduled) {
		t.Error("CHECKED_IN -> SCHEDULED must be rejected")
	}
}

func TestOverlaps(t *testing.T) {
	nine, nineThirty, ten := NewTimeOfDay(9, 0), NewTimeOfDay(9, 30), NewTimeOfDay(10, 0)

	if Overlaps(nine, nineThirty, nineThirty, ten) {
		t.Error("adjacent ranges must not overlap")
	}
	if !Overlaps(nine, ten, nineThirty, ten) {
		t.Error("contained range must overlap")
	}
	if Overlaps(nineThirty, ten, nine, nineThirty) {
		t.Error("overlap must be symmetric for adjacent ranges")
	}
}

func TestSlotKey(t *testing.T) {
	doctor := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	practice := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	withPractice := Slot{DoctorID: doctor, PracticeID: &practice, Date: date, StartTime: NewTimeOfDay(9, 0)}
	if got, want := withPractice.Key(), doctor.String()+":"+practice.String()+":2024-06-01:09:00"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	noPractice := Slot{DoctorID: doctor, Date: date, StartTime: NewTimeOfDay(9, 0)}
	if got, want := noPractice.Key(), doctor.String()+":none:2024-06-01:09:00"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestEndsAt(t *testing.T) {
	a := Appointment{
		AppointmentDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:         NewTimeOfDay(9, 30),
	}
	want := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	if got := a.EndsAt(time.UTC); !got.Equal(want) {
		t.Errorf("EndsAt() = %v, want %v", got, want)
	}
}
