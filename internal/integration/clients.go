package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/appointment"
	"github.com/tiny-steps/schedule-service/internal/config"
)

type DoctorClient struct{ c *client }

func NewDoctorClient(baseURL string, timeout time.Duration, log zerolog.Logger) *DoctorClient {
	return &DoctorClient{c: newClient("doctor", baseURL, timeout, log)}
}

func (d *DoctorClient) DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	return d.c.exists(ctx, "/"+doctorID.String())
}

type transferDoctorBody struct {
	SourceBranchID uuid.UUID `json:"sourceBranchId"`
	TargetBranchID uuid.UUID `json:"targetBranchId"`
	TransferType   string    `json:"transferType"`
}

// TransferDoctor asks the doctor service to move a doctor between branches.
func (d *DoctorClient) TransferDoctor(ctx context.Context, doctorID, from, to uuid.UUID) error {
	err := d.c.do(ctx, http.MethodPost, "/"+doctorID.String()+"/transfer", nil, transferDoctorBody{
		SourceBranchID: from,
		TargetBranchID: to,
		TransferType:   "BRANCH_TRANSFER",
	}, nil)
	if errors.Is(err, errNotFound) {
		return appointment.ErrDoctorNotFound
	}
	return err
}

type AddressClient struct{ c *client }

func NewAddressClient(baseURL string, timeout time.Duration, log zerolog.Logger) *AddressClient {
	return &AddressClient{c: newClient("address", baseURL, timeout, log)}
}

func (a *AddressClient) PracticeExists(ctx context.Context, practiceID uuid.UUID) (bool, error) {
	return a.c.exists(ctx, "/"+practiceID.String())
}

func (a *AddressClient) BranchExists(ctx context.Context, branchID uuid.UUID) (bool, error) {
	return a.c.exists(ctx, "/branch/"+branchID.String())
}

type UserClient struct{ c *client }

func NewUserClient(baseURL string, timeout time.Duration, log zerolog.Logger) *UserClient {
	return &UserClient{c: newClient("user", baseURL, timeout, log)}
}

func (u *UserClient) PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	return u.c.exists(ctx, "/"+patientID.String())
}

type SessionClient struct{ c *client }

func NewSessionClient(baseURL string, timeout time.Duration, log zerolog.Logger) *SessionClient {
	return &SessionClient{c: newClient("session", baseURL, timeout, log)}
}

func (s *SessionClient) SessionTypeExists(ctx context.Context, sessionTypeID uuid.UUID) (bool, error) {
	return s.c.exists(ctx, "/"+sessionTypeID.String())
}

type TimingClient struct{ c *client }

func NewTimingClient(baseURL string, timeout time.Duration, log zerolog.Logger) *TimingClient {
	return &TimingClient{c: newClient("timing", baseURL, timeout, log)}
}

// SlotAvailable asks whether [start, end) on date falls inside the doctor's
// published timings. Without a practice the doctor-wide timings are used.
func (t *TimingClient) SlotAvailable(ctx context.Context, doctorID uuid.UUID, practiceID *uuid.UUID, date time.Time, start, end appointment.TimeOfDay) (bool, error) {
	path := "/doctors/" + doctorID.String()
	if practiceID != nil {
		path += "/practices/" + practiceID.String()
	}
	path += "/slots/available"

	q := url.Values{}
	q.Set("date", date.Format(time.DateOnly))
	q.Set("startTime", start.String())
	q.Set("endTime", end.String())

	return t.c.getBool(ctx, path, q)
}

// Directory bundles the collaborator clients behind appointment.Directory.
type Directory struct {
	*DoctorClient
	*AddressClient
	*UserClient
	*SessionClient
	*TimingClient
}

var _ appointment.Directory = (*Directory)(nil)

func NewDirectory(cfg config.Config, log zerolog.Logger) (*Directory, error) {
	if !cfg.IntegrationsEnabled() {
		return nil, fmt.Errorf("collaborator URLs are not fully configured")
	}
	return &Directory{
		DoctorClient:  NewDoctorClient(cfg.DoctorServiceURL, cfg.IntegrationTimeout, log),
		AddressClient: NewAddressClient(cfg.AddressServiceURL, cfg.IntegrationTimeout, log),
		UserClient:    NewUserClient(cfg.UserServiceURL, cfg.IntegrationTimeout, log),
		SessionClient: NewSessionClient(cfg.SessionServiceURL, cfg.IntegrationTimeout, log),
		TimingClient:  NewTimingClient(cfg.TimingServiceURL, cfg.IntegrationTimeout, log),
	}, nil
}
