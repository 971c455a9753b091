package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for service tests. A transaction holds
// the repo mutex for its whole duration and restores a snapshot on error.
type memRepo struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]Appointment
	history []StatusHistory
	seq     int64

	// failHistory, when set, is returned by InsertHistory.
	failHistory error
}

type memTxKey struct{}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]Appointment)}
}

func (r *memRepo) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memRepo) tick() time.Time {
	r.seq++
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Millisecond)
}

func (r *memRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	apptsSnapshot := make(map[uuid.UUID]Appointment, len(r.appts))
	for k, v := range r.appts {
		apptsSnapshot[k] = v
	}
	historySnapshot := append([]StatusHistory(nil), r.history...)

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.appts = apptsSnapshot
		r.history = historySnapshot
		return err
	}
	return nil
}

func samePractice(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memRepo) Insert(ctx context.Context, a *Appointment) error {
	defer r.lock(ctx)()

	for _, existing := range r.appts {
		if existing.AppointmentNumber == a.AppointmentNumber {
			return ErrAppointmentNumberTaken
		}
		if existing.DoctorID == a.DoctorID && samePractice(existing.PracticeID, a.PracticeID) &&
			existing.AppointmentDate.Equal(a.AppointmentDate) && existing.StartTime == a.StartTime {
			return ErrSlotAlreadyBooked
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	r.appts[a.ID] = *a
	return nil
}

func (r *memRepo) SlotTaken(ctx context.Context, slot Slot) (bool, error) {
	defer r.lock(ctx)()

	for _, a := range r.appts {
		if a.DoctorID == slot.DoctorID && samePractice(a.PracticeID, slot.PracticeID) &&
			a.AppointmentDate.Equal(slot.Date) && a.StartTime == slot.StartTime {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer r.lock(ctx)()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	defer r.lock(ctx)()

	for _, a := range r.appts {
		if a.AppointmentNumber == number {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) Search(ctx context.Context, f Filter, p Page) ([]Appointment, int, error) {
	defer r.lock(ctx)()

	var matched []Appointment
	for _, a := range r.appts {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.BranchID != nil && a.BranchID != nil && *a.BranchID != *f.BranchID {
			continue
		}
		if f.PracticeID != nil && (a.PracticeID == nil || *a.PracticeID != *f.PracticeID) {
			continue
		}
		if f.SessionTypeID != nil && a.SessionTypeID != *f.SessionTypeID {
			continue
		}
		if f.Date != nil && !a.AppointmentDate.Equal(DateOnly(*f.Date)) {
			continue
		}
		if f.Date == nil && f.StartDate != nil && a.AppointmentDate.Before(DateOnly(*f.StartDate)) {
			continue
		}
		if f.Date == nil && f.EndDate != nil && a.AppointmentDate.After(DateOnly(*f.EndDate)) {
			continue
		}
		if f.ConsultationType != nil && a.ConsultationType != *f.ConsultationType {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		matched = append(matched, a)
	}
	sortByDateAndStart(matched)

	total := len(matched)
	if p.Offset >= total {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return matched[p.Offset:end], total, nil
}

func (r *memRepo) UpdateDetails(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	defer r.lock(ctx)()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if req.Notes != nil {
		a.Notes = req.Notes
	}
	if req.ConsultationType != nil {
		a.ConsultationType = *req.ConsultationType
	}
	if req.CancellationReason != nil {
		a.CancellationReason = req.CancellationReason
	}
	a.UpdatedAt = r.tick()
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) UpdateBranch(ctx context.Context, id, branchID uuid.UUID) (*Appointment, error) {
	defer r.lock(ctx)()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.BranchID = &branchID
	a.UpdatedAt = r.tick()
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.lock(ctx)()

	if _, ok := r.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appts, id)

	kept := r.history[:0]
	for _, h := range r.history {
		if h.AppointmentID != id {
			kept = append(kept, h)
		}
	}
	r.history = kept
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	defer r.lock(ctx)()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.tick()
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	defer r.lock(ctx)()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.CheckedInAt != nil {
		return nil, ErrAlreadyCheckedIn
	}
	a.Status = StatusCheckedIn
	a.CheckedInAt = &at
	a.UpdatedAt = r.tick()
	r.appts[id] = a
	return &a, nil
}

func (r *memRepo) HasOverlap(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) (bool, error) {
	defer r.lock(ctx)()

	for _, a := range r.appts {
		if a.DoctorID != doctorID || !a.AppointmentDate.Equal(DateOnly(date)) || !a.Status.Active() {
			continue
		}
		if Overlaps(a.StartTime, a.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time, statuses []AppointmentStatus) ([]Appointment, error) {
	defer r.lock(ctx)()

	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.AppointmentDate.Equal(DateOnly(date)) && containsStatus(statuses, a.Status) {
			out = append(out, a)
		}
	}
	sortByDateAndStart(out)
	return out, nil
}

func (r *memRepo) ListIDsByBranch(ctx context.Context, branchID uuid.UUID, from, to time.Time) ([]uuid.UUID, error) {
	defer r.lock(ctx)()

	var matched []Appointment
	for _, a := range r.appts {
		if a.BranchID == nil || *a.BranchID != branchID {
			continue
		}
		if a.AppointmentDate.Before(DateOnly(from)) || a.AppointmentDate.After(DateOnly(to)) {
			continue
		}
		matched = append(matched, a)
	}
	sortByDateAndStart(matched)

	ids := make([]uuid.UUID, len(matched))
	for i, a := range matched {
		ids[i] = a.ID
	}
	return ids, nil
}

func (r *memRepo) FindStaleScheduled(ctx context.Context, cutoffDate time.Time, cutoffTime TimeOfDay) ([]Appointment, error) {
	defer r.lock(ctx)()

	var out []Appointment
	for _, a := range r.appts {
		if a.Status != StatusScheduled {
			continue
		}
		if a.AppointmentDate.Before(cutoffDate) || (a.AppointmentDate.Equal(cutoffDate) && a.EndTime <= cutoffTime) {
			out = append(out, a)
		}
	}
	sortByDateAndStart(out)
	return out, nil
}

func (r *memRepo) CountByStatus(ctx context.Context, branchID *uuid.UUID) (map[AppointmentStatus]int, error) {
	defer r.lock(ctx)()

	counts := make(map[AppointmentStatus]int)
	for _, a := range r.appts {
		if branchID != nil && (a.BranchID == nil || *a.BranchID != *branchID) {
			continue
		}
		counts[a.Status]++
	}
	return counts, nil
}

func (r *memRepo) InsertHistory(ctx context.Context, h *StatusHistory) error {
	defer r.lock(ctx)()

	if r.failHistory != nil {
		return r.failHistory
	}
	if _, ok := r.appts[h.AppointmentID]; !ok {
		return ErrAppointmentNotFound
	}
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.ChangedAt = r.tick()
	r.history = append(r.history, *h)
	return nil
}

func (r *memRepo) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]StatusHistory, error) {
	defer r.lock(ctx)()

	var out []StatusHistory
	for _, h := range r.history {
		if h.AppointmentID == appointmentID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangedAt.After(out[j].ChangedAt) })
	return out, nil
}

func containsStatus(list []AppointmentStatus, s AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortByDateAndStart(items []Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AppointmentDate.Equal(items[j].AppointmentDate) {
			return items[i].AppointmentDate.Before(items[j].AppointmentDate)
		}
		return items[i].StartTime < items[j].StartTime
	})
}

var errInjected = errors.New("injected failure")
