package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
)

func newTestCmd() *cobra.Command {
	var (
		lf          limiterFlags
		requests    int
		keys        []string
		fastForward time.Duration
		workers     int
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run admission scenarios against a virtual clock",
		Long: `Runs admission checks against a virtual clock, so limits can be
verified over hours or days in milliseconds.

The test sends a batch of requests, optionally fast-forwards time,
then sends another batch to show how the limit recovers. For the
leaky bucket, the queue is drained after the fast-forward and the
number of items handed to workers is reported.`,
		Example: `  admit test --requests 20 --capacity 10 --rate 1
  admit test --algorithm sliding_window_log --capacity 5 --window 30s --fast-forward 1m
  admit test --algorithm leaky_bucket --capacity 5 --rate 2 --fast-forward 2s
  admit test --keys user1,user2 --requests 15 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.load(cmd)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				keys = []string{"test-user"}
			}

			vc := clock.NewVirtualClock(time.Now().Truncate(time.Second))
			lim, err := limiter.New(cfg.Limiter, vc)
			if err != nil {
				return err
			}

			var drained int
			if lb, ok := lim.(*limiter.LeakyBucket[string]); ok {
				for i := 0; i < workers; i++ {
					lb.Subscribe(limiter.NewFuncHandler(func(string) { drained++ }))
				}
			}

			result := runTest(vc, lim, keys, requests, fastForward)
			result.Algorithm = string(cfg.Limiter.Algorithm)
			result.Capacity = cfg.Limiter.Capacity
			result.Window = cfg.Limiter.Window.String()
			result.RatePerSecond = cfg.Limiter.RatePerSecond
			result.Drained = drained

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printTestResult(cmd.OutOrStdout(), &result)
			return nil
		},
	}

	lf.bind(cmd)
	cmd.Flags().IntVar(&requests, "requests", 15, "number of requests to send per batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated keys to test")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "time to fast-forward between batches")
	cmd.Flags().IntVar(&workers, "workers", 1, "leaky bucket handlers to subscribe")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// TestResult captures the full output of a test run.
type TestResult struct {
	Algorithm     string             `json:"algorithm"`
	Capacity      int                `json:"capacity"`
	Window        string             `json:"window"`
	RatePerSecond float64            `json:"rate_per_second"`
	FastForward   string             `json:"fast_forward,omitempty"`
	Drained       int                `json:"drained,omitempty"`
	Batches       []BatchResult      `json:"batches"`
	Summary       map[string]Summary `json:"summary"`
}

// BatchResult captures results for one batch of requests.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      time.Time        `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is a single admission check result.
type DecisionRecord struct {
	Key     string `json:"key"`
	Allowed bool   `json:"allowed"`
}

// Summary aggregates stats per key.
type Summary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
}

func runTest(vc *clock.VirtualClock, lim limiter.Limiter[string], keys []string, requests int, fastForward time.Duration) TestResult {
	result := TestResult{
		Summary: make(map[string]Summary),
	}

	runBatch := func(label string) {
		batch := BatchResult{Label: label, Time: vc.Now()}
		for i := 0; i < requests; i++ {
			for _, key := range keys {
				allowed := lim.Check(key)
				batch.Decisions = append(batch.Decisions, DecisionRecord{Key: key, Allowed: allowed})

				s := result.Summary[key]
				s.TotalRequests++
				if allowed {
					s.Allowed++
				} else {
					s.Denied++
				}
				result.Summary[key] = s
			}
		}
		result.Batches = append(result.Batches, batch)
	}

	runBatch("Initial requests")

	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()

		if lb, ok := lim.(*limiter.LeakyBucket[string]); ok {
			lb.Drain()
		}
		runBatch(fmt.Sprintf("After fast-forward %s", fastForward))
	}

	return result
}

func printTestResult(w io.Writer, r *TestResult) {
	fmt.Fprintf(w, "=== admit test: %s ===\n\n", r.Algorithm)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time.Format(time.RFC3339))
		for i, d := range batch.Decisions {
			status := "ALLOW"
			if !d.Allowed {
				status = "DENY "
			}
			fmt.Fprintf(w, "  #%03d [%s] key=%s\n", i+1, status, d.Key)
		}
		fmt.Fprintln(w)
	}

	keys := make([]string, 0, len(r.Summary))
	for key := range r.Summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "--- Summary ---")
	for _, key := range keys {
		s := r.Summary[key]
		fmt.Fprintf(w, "  %s: %d total, %d allowed, %d denied\n", key, s.TotalRequests, s.Allowed, s.Denied)
	}
	if r.FastForward != "" {
		fmt.Fprintf(w, "\nFast-forwarded %s\n", r.FastForward)
	}
	if r.Drained > 0 {
		fmt.Fprintf(w, "Drained %d queued items to workers\n", r.Drained)
	}

	if len(r.Batches) < 2 {
		return
	}
	var denied, recovered bool
	for _, d := range r.Batches[0].Decisions {
		if !d.Allowed {
			denied = true
			break
		}
	}
	for _, d := range r.Batches[1].Decisions {
		if d.Allowed {
			recovered = true
			break
		}
	}
	if denied && recovered {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "Requests were denied, then admitted again after")
		fmt.Fprintln(w, "fast-forwarding the clock.")
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
