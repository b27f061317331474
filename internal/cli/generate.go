package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/admit/internal/config"
	"github.com/SmitUplenchwar2687/admit/internal/recorder"
)

// Traffic patterns understood by generate traffic.
const (
	PatternSteady = "steady"
	PatternBurst  = "burst"
	PatternRamp   = "ramp"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample traffic files and config",
		Long: `Generates sample data for testing and experimentation.

Use "generate traffic" to create a sample traffic JSON file.
Use "generate config" to create an example YAML config file.`,
	}

	cmd.AddCommand(newGenerateTrafficCmd(), newGenerateConfigCmd())
	return cmd
}

func newGenerateTrafficCmd() *cobra.Command {
	var (
		output   string
		count    int
		keys     int
		duration time.Duration
		pattern  string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Generate a sample traffic JSON file",
		Long: `Creates a traffic file that "admit replay" can read.

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate`,
		Example: `  admit generate traffic --output traffic.json --count 100 --keys 5
  admit generate traffic --output burst.json --count 200 --pattern burst --duration 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			if keys <= 0 {
				return fmt.Errorf("--keys must be positive, got %d", keys)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			records, err := generateTraffic(rand.New(rand.NewSource(seed)), time.Now().Truncate(time.Second), count, keys, duration, pattern)
			if err != nil {
				return err
			}

			rec := recorder.New(nil)
			for _, r := range records {
				if err := rec.Record(r); err != nil {
					return err
				}
			}
			if err := rec.ExportFile(output); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d traffic records to %s\n", rec.Len(), output)
			fmt.Fprintf(out, "  Keys:     %d\n", keys)
			fmt.Fprintf(out, "  Duration: %s\n", duration)
			fmt.Fprintf(out, "  Pattern:  %s\n", pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "traffic.json", "output file path")
	cmd.Flags().IntVar(&count, "count", 100, "number of records to generate")
	cmd.Flags().IntVar(&keys, "keys", 3, "number of distinct user keys")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Minute, "time span for generated traffic")
	cmd.Flags().StringVar(&pattern, "pattern", PatternSteady, "traffic pattern (steady, burst, ramp)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one from the current time)")

	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Generate an example YAML config file",
		Example: `  admit generate config --output admit.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "admit.yaml", "output file path")
	return cmd
}

var sampleEndpoints = []string{
	"GET /api/users",
	"GET /api/data",
	"POST /api/events",
	"GET /api/search",
	"PUT /api/settings",
}

func generateTraffic(rng *rand.Rand, start time.Time, count, numKeys int, duration time.Duration, pattern string) ([]recorder.TrafficRecord, error) {
	userKeys := make([]string, numKeys)
	for i := range userKeys {
		userKeys[i] = fmt.Sprintf("user-%d", i+1)
	}

	var offsets []time.Duration
	switch pattern {
	case PatternSteady:
		offsets = steadyOffsets(count, duration)
	case PatternBurst:
		offsets = burstOffsets(rng, count, duration)
	case PatternRamp:
		offsets = rampOffsets(count, duration)
	default:
		return nil, fmt.Errorf("unknown pattern %q, must be steady, burst or ramp", pattern)
	}

	records := make([]recorder.TrafficRecord, len(offsets))
	for i, off := range offsets {
		records[i] = recorder.TrafficRecord{
			Timestamp: start.Add(off),
			Key:       userKeys[rng.Intn(len(userKeys))],
			Endpoint:  sampleEndpoints[rng.Intn(len(sampleEndpoints))],
		}
	}
	return records, nil
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	interval := dur / time.Duration(count)
	out := make([]time.Duration, count)
	for i := range out {
		out[i] = time.Duration(i) * interval
	}
	return out
}

// burstOffsets packs most records into four one-second bursts spread across
// dur and scatters the remainder.
func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	const bursts = 4
	size := count / bursts
	gap := dur / bursts

	out := make([]time.Duration, 0, count)
	for b := 0; b < bursts; b++ {
		for i := 0; i < size; i++ {
			out = append(out, time.Duration(b)*gap+time.Duration(rng.Intn(1000))*time.Millisecond)
		}
	}
	for len(out) < count {
		var off time.Duration
		if dur > 0 {
			off = time.Duration(rng.Int63n(int64(dur)))
		}
		out = append(out, off)
	}
	return out
}

// rampOffsets places record i at (i/count)² of dur, so arrivals speed up
// towards the end.
func rampOffsets(count int, dur time.Duration) []time.Duration {
	out := make([]time.Duration, count)
	for i := range out {
		frac := float64(i) / float64(count)
		out[i] = time.Duration(frac * frac * float64(dur))
	}
	return out
}
