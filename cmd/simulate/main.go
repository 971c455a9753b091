package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiny-steps/schedule-service/internal/logging"
)

type options struct {
	baseURL  string
	duration time.Duration
	workers  int
	doctors  int
	patients int
	days     int
	mix      mix
	logLevel string
}

// mix weighs the workload; weights need not sum to one.
type mix struct {
	book   float64
	status float64
	read   float64
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent bookings and status changes against a running schedule-service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "api", "http://localhost:8080", "schedule-service base URL")
	f.DurationVar(&opts.duration, "duration", 30*time.Second, "how long the workers run")
	f.IntVar(&opts.workers, "workers", 10, "concurrent workers")
	f.IntVar(&opts.doctors, "doctors", 5, "doctors to book against; fewer means more slot contention")
	f.IntVar(&opts.patients, "patients", 1000, "distinct patients")
	f.IntVar(&opts.days, "days", 3, "days ahead of today to book into")
	f.Float64Var(&opts.mix.book, "book-weight", 0.5, "relative share of bookings")
	f.Float64Var(&opts.mix.status, "status-weight", 0.3, "relative share of check-ins and completions")
	f.Float64Var(&opts.mix.read, "read-weight", 0.2, "relative share of reads")
	f.StringVar(&opts.logLevel, "log-level", "info", "zerolog level")
	return cmd
}

func (o options) validate() error {
	switch {
	case o.workers <= 0:
		return fmt.Errorf("--workers must be > 0")
	case o.duration <= 0:
		return fmt.Errorf("--duration must be > 0")
	case o.doctors <= 0 || o.patients <= 0 || o.days <= 0:
		return fmt.Errorf("--doctors, --patients and --days must be > 0")
	case o.mix.book < 0 || o.mix.status < 0 || o.mix.read < 0:
		return fmt.Errorf("weights must not be negative")
	case o.mix.book+o.mix.status+o.mix.read == 0:
		return fmt.Errorf("at least one weight must be positive")
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	logger := logging.New(os.Getenv("APP_ENV"), opts.logLevel)

	sim := newSimulator(opts, &apiClient{
		base: opts.baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}, logger)

	logger.Info().
		Str("api", opts.baseURL).
		Dur("duration", opts.duration).
		Int("workers", opts.workers).
		Int("doctors", opts.doctors).
		Msg("simulation starting")

	runCtx, cancel := context.WithTimeout(ctx, opts.duration)
	elapsed := sim.run(runCtx)
	cancel()

	sim.stats.writeReport(os.Stdout, elapsed, opts.workers)

	auditCtx, cancelAudit := context.WithTimeout(ctx, time.Minute)
	defer cancelAudit()
	dupes, err := auditCheckIns(auditCtx, sim.client, sim.booked.snapshot(), logger)
	if err != nil {
		return fmt.Errorf("check-in audit: %w", err)
	}
	if dupes > 0 {
		return fmt.Errorf("%d appointment(s) checked in more than once", dupes)
	}
	logger.Info().Int("appointments", sim.booked.len()).Msg("no duplicate check-ins")
	return nil
}
