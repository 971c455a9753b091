package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/tiny-steps/schedule-service/internal/appointment"
	"github.com/tiny-steps/schedule-service/internal/transfer"
)

type CreateAppointmentRequest struct {
	DoctorID         string  `json:"doctor_id"`
	PatientID        string  `json:"patient_id"`
	SessionTypeID    string  `json:"session_type_id"`
	PracticeID       *string `json:"practice_id,omitempty"`
	BranchID         *string `json:"branch_id,omitempty"`
	AppointmentDate  string  `json:"appointment_date"` // YYYY-MM-DD
	StartTime        string  `json:"start_time"`       // HH:MM
	DurationMinutes  *int    `json:"duration_minutes,omitempty"`
	ConsultationType string  `json:"consultation_type,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	Notes              *string `json:"notes,omitempty"`
	ConsultationType   *string `json:"consultation_type,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
}

type ChangeStatusRequest struct {
	Status                     string  `json:"status"`
	ChangedByID                string  `json:"changed_by_id"`
	Reason                     *string `json:"reason,omitempty"`
	CancellationType           *string `json:"cancellation_type,omitempty"`
	RescheduledToAppointmentID *string `json:"rescheduled_to_appointment_id,omitempty"`
}

type TransferRequest struct {
	SourceBranchID string   `json:"source_branch_id"`
	TargetBranchID string   `json:"target_branch_id"`
	AppointmentIDs []string `json:"appointment_ids,omitempty"`
	DoctorIDs      []string `json:"doctor_ids,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	EndDate        *string  `json:"end_date,omitempty"`
	Reason         *string  `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID             `json:"id"`
	AppointmentNumber  string                `json:"appointment_number"`
	DoctorID           uuid.UUID             `json:"doctor_id"`
	PatientID          uuid.UUID             `json:"patient_id"`
	SessionTypeID      uuid.UUID             `json:"session_type_id"`
	PracticeID         *uuid.UUID            `json:"practice_id,omitempty"`
	BranchID           *uuid.UUID            `json:"branch_id,omitempty"`
	AppointmentDate    string                `json:"appointment_date"`
	StartTime          appointment.TimeOfDay `json:"start_time"`
	EndTime            appointment.TimeOfDay `json:"end_time"`
	Status             string                `json:"status"`
	ConsultationType   string                `json:"consultation_type"`
	CheckedInAt        *time.Time            `json:"checked_in_at,omitempty"`
	Notes              *string               `json:"notes,omitempty"`
	CancellationReason *string               `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		AppointmentNumber:  a.AppointmentNumber,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		SessionTypeID:      a.SessionTypeID,
		PracticeID:         a.PracticeID,
		BranchID:           a.BranchID,
		AppointmentDate:    a.AppointmentDate.Format(time.DateOnly),
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		ConsultationType:   string(a.ConsultationType),
		CheckedInAt:        a.CheckedInAt,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(items))
	for i := range items {
		out[i] = toAppointmentResponse(&items[i])
	}
	return out
}

type PageResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type StatusHistoryResponse struct {
	ID                         uuid.UUID  `json:"id"`
	AppointmentID              uuid.UUID  `json:"appointment_id"`
	OldStatus                  *string    `json:"old_status,omitempty"`
	NewStatus                  string     `json:"new_status"`
	ChangedByID                uuid.UUID  `json:"changed_by_id"`
	CancellationType           *string    `json:"cancellation_type,omitempty"`
	RescheduledToAppointmentID *uuid.UUID `json:"rescheduled_to_appointment_id,omitempty"`
	Reason                     *string    `json:"reason,omitempty"`
	ChangedAt                  time.Time  `json:"changed_at"`
}

func toHistoryResponses(rows []appointment.StatusHistory) []StatusHistoryResponse {
	out := make([]StatusHistoryResponse, len(rows))
	for i, h := range rows {
		r := StatusHistoryResponse{
			ID:                         h.ID,
			AppointmentID:              h.AppointmentID,
			NewStatus:                  string(h.NewStatus),
			ChangedByID:                h.ChangedByID,
			RescheduledToAppointmentID: h.RescheduledToAppointmentID,
			Reason:                     h.Reason,
			ChangedAt:                  h.ChangedAt,
		}
		if h.OldStatus != nil {
			s := string(*h.OldStatus)
			r.OldStatus = &s
		}
		if h.CancellationType != nil {
			c := string(*h.CancellationType)
			r.CancellationType = &c
		}
		out[i] = r
	}
	return out
}

type ConflictResponse struct {
	Conflict bool `json:"conflict"`
}

type StatisticsResponse struct {
	BranchID *uuid.UUID     `json:"branch_id,omitempty"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type TransferItemResponse struct {
	ItemID   uuid.UUID `json:"item_id"`
	ItemType string    `json:"item_type"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}

type TransferResponse struct {
	TransferID     uuid.UUID              `json:"transfer_id"`
	Status         string                 `json:"status"`
	Message        string                 `json:"message"`
	TransferredAt  time.Time              `json:"transferred_at"`
	TotalRequested int                    `json:"total_requested"`
	Successful     int                    `json:"successful"`
	Failed         int                    `json:"failed"`
	Items          []TransferItemResponse `json:"items"`
	Errors         []string               `json:"errors,omitempty"`
}

func toTransferResponse(r *transfer.Result) TransferResponse {
	items := make([]TransferItemResponse, len(r.Items))
	for i, it := range r.Items {
		items[i] = TransferItemResponse{ItemID: it.ItemID, ItemType: it.ItemType, Success: it.Success, Error: it.Error}
	}
	return TransferResponse{
		TransferID:     r.TransferID,
		Status:         string(r.Status),
		Message:        r.Message,
		TransferredAt:  r.TransferredAt,
		TotalRequested: r.TotalRequested,
		Successful:     r.Successful,
		Failed:         r.Failed,
		Items:          items,
		Errors:         r.Errors,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
