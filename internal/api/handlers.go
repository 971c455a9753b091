package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiny-steps/schedule-service/internal/appointment"
	redisclient "github.com/tiny-steps/schedule-service/internal/redis"
	"github.com/tiny-steps/schedule-service/internal/transfer"
)

// userIDHeader carries the caller identity when changed_by_id is omitted.
const userIDHeader = "X-User-ID"

func createAppointmentHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.toCreateRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.Create(r.Context(), in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func (req CreateAppointmentRequest) toCreateRequest() (appointment.CreateRequest, error) {
	var out appointment.CreateRequest
	var err error

	if out.DoctorID, err = parseUUID("doctor_id", req.DoctorID); err != nil {
		return out, err
	}
	if out.PatientID, err = parseUUID("patient_id", req.PatientID); err != nil {
		return out, err
	}
	if out.SessionTypeID, err = parseUUID("session_type_id", req.SessionTypeID); err != nil {
		return out, err
	}
	if out.PracticeID, err = parseOptionalUUID("practice_id", req.PracticeID); err != nil {
		return out, err
	}
	if out.BranchID, err = parseOptionalUUID("branch_id", req.BranchID); err != nil {
		return out, err
	}
	if out.Date, err = parseDate("appointment_date", req.AppointmentDate); err != nil {
		return out, err
	}
	if out.StartTime, err = appointment.ParseTimeOfDay(req.StartTime); err != nil {
		return out, fmt.Errorf("start_time: %w", err)
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return out, errors.New("duration_minutes must be positive")
		}
		if *req.DurationMinutes > int(appointment.MaxDuration/time.Minute) {
			return out, errors.New("duration_minutes must not exceed 1440")
		}
		out.Duration = time.Duration(*req.DurationMinutes) * time.Minute
	}
	if req.ConsultationType != "" {
		ct, err := appointment.ParseConsultationType(req.ConsultationType)
		if err != nil {
			return out, err
		}
		out.ConsultationType = ct
	}
	out.Notes = req.Notes
	return out, nil
}

func getAppointmentHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetByID(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentByNumberHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.GetByNumber(r.Context(), chi.URLParam(r, "number"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, p, err := parseSearchQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		res, err := svc.Search(r.Context(), f, p)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, PageResponse{
			Items:  toAppointmentResponses(res.Items),
			Total:  res.Total,
			Limit:  res.Limit,
			Offset: res.Offset,
		})
	}
}

func parseSearchQuery(r *http.Request) (appointment.Filter, appointment.Page, error) {
	q := r.URL.Query()
	var f appointment.Filter
	var p appointment.Page
	var err error

	ids := []struct {
		name string
		dst  **uuid.UUID
	}{
		{"doctor_id", &f.DoctorID},
		{"patient_id", &f.PatientID},
		{"practice_id", &f.PracticeID},
		{"session_type_id", &f.SessionTypeID},
		{"branch_id", &f.BranchID},
	}
	for _, id := range ids {
		raw := q.Get(id.name)
		if raw == "" {
			continue
		}
		if *id.dst, err = parseOptionalUUID(id.name, &raw); err != nil {
			return f, p, err
		}
	}

	dates := []struct {
		name string
		dst  **time.Time
	}{
		{"date", &f.Date},
		{"start_date", &f.StartDate},
		{"end_date", &f.EndDate},
	}
	for _, d := range dates {
		raw := q.Get(d.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(d.name, raw)
		if err != nil {
			return f, p, err
		}
		*d.dst = &t
	}

	if f.Statuses, err = appointment.ParseStatusList(q.Get("status")); err != nil {
		return f, p, err
	}
	if raw := q.Get("consultation_type"); raw != "" {
		ct, err := appointment.ParseConsultationType(raw)
		if err != nil {
			return f, p, err
		}
		f.ConsultationType = &ct
	}

	if p.Limit, err = parseIntQuery(q.Get("limit")); err != nil {
		return f, p, fmt.Errorf("limit: %w", err)
	}
	if p.Offset, err = parseIntQuery(q.Get("offset")); err != nil {
		return f, p, fmt.Errorf("offset: %w", err)
	}
	return f, p, nil
}

func updateAppointmentHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := appointment.UpdateRequest{Notes: req.Notes, CancellationReason: req.CancellationReason}
		if req.ConsultationType != nil {
			ct, err := appointment.ParseConsultationType(*req.ConsultationType)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			in.ConsultationType = &ct
		}

		appt, err := svc.Update(r.Context(), id, in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			handleError(w, r, log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func changeStatusHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req ChangeStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ChangedByID == "" {
			req.ChangedByID = r.Header.Get(userIDHeader)
		}

		in, err := req.toChangeStatusRequest(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (req ChangeStatusRequest) toChangeStatusRequest(id uuid.UUID) (appointment.ChangeStatusRequest, error) {
	out := appointment.ChangeStatusRequest{AppointmentID: id, Reason: req.Reason}

	status, err := appointment.ParseStatus(req.Status)
	if err != nil {
		return out, err
	}
	out.NewStatus = status

	// A missing actor is left as uuid.Nil for the service to reject.
	if req.ChangedByID != "" {
		if out.ChangedByID, err = parseUUID("changed_by_id", req.ChangedByID); err != nil {
			return out, err
		}
	}
	if req.CancellationType != nil {
		ct, err := appointment.ParseCancellationType(*req.CancellationType)
		if err != nil {
			return out, err
		}
		out.CancellationType = &ct
	}
	if out.RescheduledToAppointmentID, err = parseOptionalUUID("rescheduled_to_appointment_id", req.RescheduledToAppointmentID); err != nil {
		return out, err
	}
	return out, nil
}

func historyHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		history, err := svc.GetHistory(r.Context(), id)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toHistoryResponses(history))
	}
}

func conflictHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorID, err := parseUUID("doctor_id", q.Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		date, err := parseDate("date", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		start, err := appointment.ParseTimeOfDay(q.Get("start_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "start_time: "+err.Error())
			return
		}
		end, err := appointment.ParseTimeOfDay(q.Get("end_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "end_time: "+err.Error())
			return
		}

		conflict, err := svc.HasTimeSlotConflict(r.Context(), doctorID, date, start, end)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, ConflictResponse{Conflict: conflict})
	}
}

func doctorAppointmentsHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := parseUUID("doctorId", chi.URLParam(r, "doctorId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
			return
		}
		date, err := parseDate("date", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		items, err := svc.GetExistingAppointments(r.Context(), doctorID, date, r.URL.Query().Get("status"))
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(items))
	}
}

func statisticsHandler(svc AppointmentService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var branchID *uuid.UUID
		if raw := r.URL.Query().Get("branch_id"); raw != "" {
			id, err := parseUUID("branch_id", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
				return
			}
			branchID = &id
		}

		stats, err := svc.Statistics(r.Context(), branchID)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		resp := StatisticsResponse{BranchID: stats.BranchID, Total: stats.Total, ByStatus: make(map[string]int, len(stats.ByStatus))}
		for st, n := range stats.ByStatus {
			resp.ByStatus[string(st)] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func transferAppointmentsHandler(svc TransferService, log zerolog.Logger) http.HandlerFunc {
	return transferHandler(log, svc.TransferAppointments)
}

func transferDoctorsHandler(svc TransferService, log zerolog.Logger) http.HandlerFunc {
	return transferHandler(log, svc.TransferDoctors)
}

func transferHandler(log zerolog.Logger, run func(ctx context.Context, req transfer.Request) (*transfer.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.toTransferRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		res, err := run(r.Context(), in)
		if err != nil {
			handleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toTransferResponse(res))
	}
}

func (req TransferRequest) toTransferRequest() (transfer.Request, error) {
	var out transfer.Request
	var err error

	if out.SourceBranchID, err = parseUUID("source_branch_id", req.SourceBranchID); err != nil {
		return out, err
	}
	if out.TargetBranchID, err = parseUUID("target_branch_id", req.TargetBranchID); err != nil {
		return out, err
	}
	if out.AppointmentIDs, err = parseUUIDList("appointment_ids", req.AppointmentIDs); err != nil {
		return out, err
	}
	if out.DoctorIDs, err = parseUUIDList("doctor_ids", req.DoctorIDs); err != nil {
		return out, err
	}
	if req.StartDate != nil {
		d, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return out, err
		}
		out.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return out, err
		}
		out.EndDate = &d
	}
	out.Reason = req.Reason
	return out, nil
}

// handleError maps service errors to HTTP responses by error kind.
func handleError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAlreadyCheckedIn):
		writeError(w, http.StatusConflict, "already_checked_in", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrIntegration):
		log.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("collaborator call failed")
		writeError(w, http.StatusBadGateway, "integration_error", "a dependent service is unavailable")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID", field)
	}
	return id, nil
}

func parseOptionalUUID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := parseUUID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseUUIDList(field string, raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := parseUUID(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format", field)
	}
	return t, nil
}

func parseIntQuery(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return n, nil
}
