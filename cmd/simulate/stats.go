package main

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"text/tabwriter"
	"time"
)

type outcome int

const (
	outcomeOK outcome = iota
	outcomeConflict
	outcomeFailed
)

// classify treats 409 as an expected loss of a race, anything else but want as a failure.
func classify(code int, err error, want int) outcome {
	switch {
	case err != nil:
		return outcomeFailed
	case code == want:
		return outcomeOK
	case code == http.StatusConflict:
		return outcomeConflict
	default:
		return outcomeFailed
	}
}

type opStats struct {
	mu      sync.Mutex
	counts  [3]int
	samples []time.Duration
}

func (o *opStats) add(out outcome, d time.Duration) {
	o.mu.Lock()
	o.counts[out]++
	o.samples = append(o.samples, d)
	o.mu.Unlock()
}

type summary struct {
	count, ok, conflict, failed int
	mean, p50, p95, p99, max    time.Duration
}

func (o *opStats) summarize() summary {
	o.mu.Lock()
	sorted := slices.Clone(o.samples)
	sum := summary{ok: o.counts[outcomeOK], conflict: o.counts[outcomeConflict], failed: o.counts[outcomeFailed]}
	o.mu.Unlock()

	sum.count = len(sorted)
	if sum.count == 0 {
		return sum
	}
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	sum.mean = total / time.Duration(sum.count)
	sum.p50 = nearestRank(sorted, 0.50)
	sum.p95 = nearestRank(sorted, 0.95)
	sum.p99 = nearestRank(sorted, 0.99)
	sum.max = sorted[sum.count-1]
	return sum
}

// nearestRank returns the smallest sample with at least q of the samples at or below it.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

// recorder keeps per-operation stats in registration order.
type recorder struct {
	mu    sync.Mutex
	byOp  map[string]*opStats
	order []string
}

func newRecorder() *recorder {
	return &recorder{byOp: make(map[string]*opStats)}
}

func (r *recorder) op(name string) *opStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byOp[name]
	if !ok {
		st = &opStats{}
		r.byOp[name] = st
		r.order = append(r.order, name)
	}
	return st
}

func (r *recorder) writeReport(w io.Writer, elapsed time.Duration, workers int) {
	r.mu.Lock()
	names := slices.Clone(r.order)
	r.mu.Unlock()

	fmt.Fprintf(w, "\nsimulation: %d workers for %s\n\n", workers, elapsed.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "operation\trequests\tok\tconflict\tfailed\tmean\tp50\tp95\tp99\tmax\t")
	for _, name := range names {
		s := r.op(name).summarize()
		if s.count == 0 {
			continue
		}
		rps := float64(s.count) / elapsed.Seconds()
		fmt.Fprintf(tw, "%s\t%d (%.0f/s)\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			name, s.count, rps, s.ok, s.conflict, s.failed,
			ms(s.mean), ms(s.p50), ms(s.p95), ms(s.p99), ms(s.max))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}

func ms(d time.Duration) string {
	return d.Round(100 * time.Microsecond).String()
}
