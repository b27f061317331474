package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/admit/internal/config"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
)

// limiterFlags are the limiter parameters shared by server, test and replay.
// Values from --config are used unless the flag was set explicitly.
type limiterFlags struct {
	configFile string
	algorithm  string
	capacity   int
	window     time.Duration
	rate       float64
}

func (f *limiterFlags) bind(cmd *cobra.Command) {
	def := config.Default().Limiter
	cmd.Flags().StringVar(&f.configFile, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", string(def.Algorithm), "admission algorithm ("+limiter.AlgorithmNames()+")")
	cmd.Flags().IntVar(&f.capacity, "capacity", def.Capacity, "requests per window, bucket size or queue length")
	cmd.Flags().DurationVar(&f.window, "window", def.Window, "window length (fixed_window, sliding_window_*)")
	cmd.Flags().Float64Var(&f.rate, "rate", def.RatePerSecond, "refill or drain rate per second (token_bucket, leaky_bucket)")
}

// load returns the full config with explicitly set flags applied on top.
func (f *limiterFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Limiter.Algorithm = limiter.Algorithm(f.algorithm)
	}
	if flags.Changed("capacity") {
		cfg.Limiter.Capacity = f.capacity
	}
	if flags.Changed("window") {
		cfg.Limiter.Window = f.window
	}
	if flags.Changed("rate") {
		cfg.Limiter.RatePerSecond = f.rate
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
