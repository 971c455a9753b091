package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// booked collects the appointment IDs that later operations act on.
type booked struct {
	mu  sync.RWMutex
	ids []uuid.UUID
}

func (b *booked) add(id uuid.UUID) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()
}

func (b *booked) random(rng *rand.Rand) (uuid.UUID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ids) == 0 {
		return uuid.Nil, false
	}
	return b.ids[rng.IntN(len(b.ids))], true
}

func (b *booked) snapshot() []uuid.UUID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]uuid.UUID(nil), b.ids...)
}

func (b *booked) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

// operation is one kind of request a worker can issue. run reports false when
// it had nothing to act on yet, and the attempt is not counted.
type operation struct {
	name   string
	weight float64
	run    func(ctx context.Context, rng *rand.Rand) (outcome, bool)
}

type simulator struct {
	opts    options
	client  *apiClient
	log     zerolog.Logger
	stats   *recorder
	booked  booked
	ops     []operation
	total   float64
	doctors []uuid.UUID
	patient []uuid.UUID
	session uuid.UUID
	actor   uuid.UUID
}

func newSimulator(opts options, client *apiClient, log zerolog.Logger) *simulator {
	s := &simulator{
		opts:    opts,
		client:  client,
		log:     log,
		stats:   newRecorder(),
		doctors: newIDs(opts.doctors),
		patient: newIDs(opts.patients),
		session: uuid.New(),
		actor:   uuid.New(),
	}

	// Check-ins outnumber completions three to one so the same appointment is
	// often checked in by several workers at once.
	s.ops = []operation{
		{name: "book", weight: opts.mix.book, run: s.book},
		{name: "check-in", weight: opts.mix.status * 0.75, run: s.statusChange("CHECKED_IN")},
		{name: "complete", weight: opts.mix.status * 0.25, run: s.statusChange("COMPLETED")},
		{name: "get", weight: opts.mix.read / 2, run: s.get},
		{name: "list-by-doctor", weight: opts.mix.read / 2, run: s.listByDoctor},
	}
	for _, op := range s.ops {
		s.total += op.weight
		s.stats.op(op.name)
	}
	return s
}

func newIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

// pick maps r in [0,1) onto the cumulative operation weights.
func (s *simulator) pick(r float64) operation {
	target := r * s.total
	for _, op := range s.ops {
		if target < op.weight {
			return op
		}
		target -= op.weight
	}
	return s.ops[len(s.ops)-1]
}

// run blocks until ctx is done and returns the wall time the workers ran for.
func (s *simulator) run(ctx context.Context) time.Duration {
	began := time.Now()

	var wg sync.WaitGroup
	for w := range s.opts.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(began.UnixNano()), uint64(w)))
			for ctx.Err() == nil {
				op := s.pick(rng.Float64())
				start := time.Now()
				if out, counted := op.run(ctx, rng); counted && ctx.Err() == nil {
					s.stats.op(op.name).add(out, time.Since(start))
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(began)
	s.log.Info().Dur("elapsed", elapsed).Msg("simulation complete")
	return elapsed
}

func (s *simulator) randomDate(rng *rand.Rand) string {
	return time.Now().UTC().AddDate(0, 0, 1+rng.IntN(s.opts.days)).Format(time.DateOnly)
}

// book targets a half-hour grid between 09:00 and 16:30 so slots collide often.
func (s *simulator) book(ctx context.Context, rng *rand.Rand) (outcome, bool) {
	req := map[string]string{
		"doctor_id":        s.doctors[rng.IntN(len(s.doctors))].String(),
		"patient_id":       s.patient[rng.IntN(len(s.patient))].String(),
		"session_type_id":  s.session.String(),
		"appointment_date": s.randomDate(rng),
		"start_time":       fmt.Sprintf("%02d:%02d", 9+rng.IntN(8), 30*rng.IntN(2)),
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	code, err := s.client.do(ctx, http.MethodPost, "/api/v1/appointments", req, &created)
	out := classify(code, err, http.StatusCreated)
	if out == outcomeOK && created.ID != uuid.Nil {
		s.booked.add(created.ID)
	}
	return out, true
}

func (s *simulator) statusChange(status string) func(context.Context, *rand.Rand) (outcome, bool) {
	return func(ctx context.Context, rng *rand.Rand) (outcome, bool) {
		id, ok := s.booked.random(rng)
		if !ok {
			return 0, false
		}
		req := map[string]string{"status": status, "changed_by_id": s.actor.String()}
		code, err := s.client.do(ctx, http.MethodPost, "/api/v1/appointments/"+id.String()+"/status", req, nil)
		return classify(code, err, http.StatusOK), true
	}
}

func (s *simulator) get(ctx context.Context, rng *rand.Rand) (outcome, bool) {
	id, ok := s.booked.random(rng)
	if !ok {
		return 0, false
	}
	code, err := s.client.do(ctx, http.MethodGet, "/api/v1/appointments/"+id.String(), nil, nil)
	return classify(code, err, http.StatusOK), true
}

func (s *simulator) listByDoctor(ctx context.Context, rng *rand.Rand) (outcome, bool) {
	doctor := s.doctors[rng.IntN(len(s.doctors))]
	path := fmt.Sprintf("/api/v1/doctors/%s/appointments?date=%s", doctor, s.randomDate(rng))
	code, err := s.client.do(ctx, http.MethodGet, path, nil, nil)
	return classify(code, err, http.StatusOK), true
}
