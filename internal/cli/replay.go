package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
	"github.com/SmitUplenchwar2687/admit/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		lf         limiterFlags
		file       string
		speed      float64
		keys       []string
		endpoints  []string
		after      string
		before     string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded traffic through an admission algorithm",
		Long: `Replays previously recorded traffic through an admission algorithm.

Records are replayed in timestamp order on a virtual clock that advances
by the gap between records, so the algorithm sees the original timing
whatever the replay speed.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  admit replay --file traffic.json
  admit replay --file traffic.json --speed 100 --algorithm sliding_window_counter
  admit replay --file traffic.json --keys user-1,user-2 --endpoints /api/search
  admit replay --file traffic.json --after 2024-01-01T00:01:00Z --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, err := lf.load(cmd)
			if err != nil {
				return err
			}

			filter := replay.Filter{Keys: keys, Endpoints: endpoints}
			if filter.After, err = parseTimeFlag("after", after); err != nil {
				return err
			}
			if filter.Before, err = parseTimeFlag("before", before); err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			vc := clock.NewVirtualClock(time.Unix(0, 0))
			lim, err := limiter.New(cfg.Limiter, vc)
			if err != nil {
				return err
			}

			r := replay.New(lim, vc, replay.Options{Speed: speed, Filter: filter})
			if err := r.Load(f); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s through %s at %gx speed...\n\n", file, cfg.Limiter.Algorithm, speed)
			}

			var results []replay.Result
			summary, err := r.Run(cmd.Context(), func(res replay.Result) {
				if outputJSON {
					results = append(results, res)
					return
				}
				status := "ALLOW"
				if !res.Allowed {
					status = "DENY "
				}
				fmt.Fprintf(out, "  [%s] %s key=%s endpoint=%s\n",
					status, res.Record.Timestamp.Format("15:04:05.000"), res.Record.Key, res.Record.Endpoint)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				return writeJSON(out, replayOutput{Results: results, Summary: summary})
			}
			printReplaySummary(out, summary)
			return nil
		},
	}

	lf.bind(cmd)
	cmd.Flags().StringVar(&file, "file", "", "path to recorded traffic JSON file (required)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "only replay these keys (comma-separated)")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "only replay endpoints containing these strings")
	cmd.Flags().StringVar(&after, "after", "", "only replay records after this RFC 3339 time")
	cmd.Flags().StringVar(&before, "before", "", "only replay records before this RFC 3339 time")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

type replayOutput struct {
	Results []replay.Result `json:"results"`
	Summary *replay.Summary `json:"summary"`
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --%s: %w", name, err)
	}
	return t, nil
}

func printReplaySummary(w io.Writer, s *replay.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "--- Replay Summary ---")
	fmt.Fprintf(w, "  Total records:  %d\n", s.TotalRecords)
	fmt.Fprintf(w, "  Filtered:       %d\n", s.Filtered)
	fmt.Fprintf(w, "  Replayed:       %d\n", s.Replayed)
	fmt.Fprintf(w, "  Allowed:        %d\n", s.Allowed)
	fmt.Fprintf(w, "  Denied:         %d\n", s.Denied)
	fmt.Fprintf(w, "  Virtual time:   %s\n", s.Duration)
	fmt.Fprintf(w, "  Wall time:      %s\n", s.WallDuration.Round(time.Millisecond))

	if len(s.PerKey) > 1 {
		keys := make([]string, 0, len(s.PerKey))
		for key := range s.PerKey {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "\n  Per key:")
		for _, key := range keys {
			ks := s.PerKey[key]
			fmt.Fprintf(w, "    %s: %d allowed, %d denied\n", key, ks.Allowed, ks.Denied)
		}
	}

	if s.Denied > 0 && s.Allowed > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		denyRate := float64(s.Denied) / float64(s.Replayed) * 100
		fmt.Fprintf(w, "Deny rate: %.1f%% (%d/%d requests denied)\n", denyRate, s.Denied, s.Replayed)
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
