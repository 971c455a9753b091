package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tiny-steps/schedule-service/internal/appointment"
)

func TestExists(t *testing.T) {
	known := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + known.String():
			w.WriteHeader(http.StatusOK)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	doctors := NewDoctorClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	ok, err := doctors.DoctorExists(ctx, known)
	if err != nil || !ok {
		t.Errorf("DoctorExists(known) = %v, %v, want true, nil", ok, err)
	}

	ok, err = doctors.DoctorExists(ctx, uuid.New())
	if err != nil || ok {
		t.Errorf("DoctorExists(unknown) = %v, %v, want false, nil", ok, err)
	}

	_, err = doctors.c.exists(ctx, "/broken")
	if !errors.Is(err, appointment.ErrIntegration) {
		t.Errorf("exists(broken) error = %v, want ErrIntegration", err)
	}
}

func TestExists_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	users := NewUserClient(srv.URL, time.Second, zerolog.Nop())
	_, err := users.PatientExists(context.Background(), uuid.New())
	if !errors.Is(err, appointment.ErrIntegration) {
		t.Fatalf("error = %v, want ErrIntegration", err)
	}
}

func TestSlotAvailable(t *testing.T) {
	doctor, practice := uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/doctors/" + doctor.String() + "/practices/" + practice.String() + "/slots/available"
		if r.URL.Path != want {
			t.Errorf("path = %s, want %s", r.URL.Path, want)
		}
		q := r.URL.Query()
		if q.Get("date") != "2024-06-01" || q.Get("startTime") != "09:00" || q.Get("endTime") != "09:30" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(q.Get("startTime") == "09:00")
	}))
	defer srv.Close()

	timing := NewTimingClient(srv.URL, time.Second, zerolog.Nop())
	ok, err := timing.SlotAvailable(context.Background(), doctor, &practice,
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), appointment.NewTimeOfDay(9, 0), appointment.NewTimeOfDay(9, 30))
	if err != nil || !ok {
		t.Fatalf("SlotAvailable() = %v, %v, want true, nil", ok, err)
	}
}

func TestTransferDoctor(t *testing.T) {
	doctor, from, to := uuid.New(), uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/"+doctor.String()+"/transfer" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body transferDoctorBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.SourceBranchID != from || body.TargetBranchID != to || body.TransferType != "BRANCH_TRANSFER" {
			t.Errorf("body = %+v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	doctors := NewDoctorClient(srv.URL, time.Second, zerolog.Nop())
	if err := doctors.TransferDoctor(context.Background(), doctor, from, to); err != nil {
		t.Fatalf("TransferDoctor() error = %v", err)
	}
	if err := doctors.TransferDoctor(context.Background(), uuid.New(), from, to); !errors.Is(err, appointment.ErrDoctorNotFound) {
		t.Fatalf("TransferDoctor(unknown) error = %v, want ErrDoctorNotFound", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sessions := NewSessionClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := sessions.SessionTypeExists(ctx, uuid.New()); !errors.Is(err, appointment.ErrIntegration) {
			t.Fatalf("call %d error = %v, want ErrIntegration", i, err)
		}
	}

	_, err := sessions.SessionTypeExists(ctx, uuid.New())
	if !errors.Is(err, appointment.ErrIntegration) {
		t.Fatalf("error = %v, want ErrIntegration", err)
	}
	if sessions.c.cb.State() != gobreaker.StateOpen {
		t.Errorf("breaker state = %s, want open", sessions.c.cb.State())
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("server calls = %d, want 5 (open breaker must short-circuit)", got)
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	addresses := NewAddressClient(srv.URL, time.Second, zerolog.Nop())
	for i := 0; i < 10; i++ {
		ok, err := addresses.BranchExists(context.Background(), uuid.New())
		if err != nil || ok {
			t.Fatalf("BranchExists() = %v, %v, want false, nil", ok, err)
		}
	}
	if addresses.c.cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %s, want closed", addresses.c.cb.State())
	}
}
