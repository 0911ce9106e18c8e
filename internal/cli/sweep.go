package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casesweep/internal/model"
	"github.com/ppiankov/casesweep/internal/pipeline"
	"github.com/ppiankov/casesweep/internal/store"
)

// sweepFlags are shared by the sweep and details commands
type sweepFlags struct {
	start          string
	end            string
	classCodes     []string
	classCodesFile string
	timeout        time.Duration
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.start, "start", "", "first filing date, YYYY-MM-DD")
	flags.StringVar(&f.end, "end", "", "last filing date, YYYY-MM-DD (default today)")
	flags.StringSliceVar(&f.classCodes, "class-code", nil, "class code to sweep (repeatable; default the built-in list)")
	flags.StringVar(&f.classCodesFile, "class-codes-file", "", "file with one class code per line")
	flags.Int("span-days", 0, "days per search window")
	flags.String("on-error", "", "failed query policy: fail-fast or best-effort")
	flags.Int("concurrency", 0, "queries in flight at once")
	flags.String("cookie", "", `extra Cookie header for the portal, e.g. "a=b; c=d"`)
	flags.Bool("cache", false, "reuse cached responses for windows that ended before today")
	flags.DurationVar(&f.timeout, "timeout", 0, "overall timeout (0 means none)")
}

var sweepBindings = map[string]string{
	"sweep.span_days":   "span-days",
	"sweep.on_error":    "on-error",
	"sweep.concurrency": "concurrency",
	"http.cookie":       "cookie",
	"cache.enabled":     "cache",
}

// params resolves dates and class codes, applying flag-only overrides to cfg
func (f *sweepFlags) params(cfg *model.Config) (pipeline.SweepParams, error) {
	if f.start == "" {
		return pipeline.SweepParams{}, fmt.Errorf("--start is required")
	}
	now := time.Now()
	start, err := parseDate("start", f.start, now)
	if err != nil {
		return pipeline.SweepParams{}, err
	}
	end, err := parseDate("end", f.end, now)
	if err != nil {
		return pipeline.SweepParams{}, err
	}

	codes := append([]string(nil), f.classCodes...)
	if f.classCodesFile != "" {
		lines, err := readLines(f.classCodesFile)
		if err != nil {
			return pipeline.SweepParams{}, fmt.Errorf("class codes file: %w", err)
		}
		codes = append(codes, lines...)
	}
	return pipeline.SweepParams{Start: start, End: end, ClassCodes: codes}, nil
}

var (
	sweepOpts sweepFlags
	sweepOut  string
	noSummary bool
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Search a filing-date range for every class code and merge the results",
	Long: `Sweep splits the date range into fixed-size windows and runs one advanced
search per window and class code, in that order. Cases seen more than once
are merged; the first summary wins and every matching class code is kept.

Example:
  casesweep sweep --start 2025-01-01 --end 2025-01-31
  casesweep sweep --start 2025-01-01 --class-code 30401 --class-code 30301 -o sweep.json
  casesweep sweep --start 2025-01-01 --on-error best-effort --db ~/.casesweep/casesweep.db`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepOpts.register(sweepCmd)
	sweepCmd.Flags().StringVarP(&sweepOut, "output", "o", pipeline.Stdout, `sweep JSON path ("-" for stdout)`)
	sweepCmd.Flags().BoolVar(&noSummary, "no-summary", false, "do not print the per-class-code summary")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, sweepBindings)
	if err != nil {
		return err
	}
	params, err := sweepOpts.params(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if sweepOpts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sweepOpts.timeout)
		defer cancel()
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Sweeping %s..%s in %d-day windows\n",
			params.Start.Format(time.DateOnly), params.End.Format(time.DateOnly), cfg.Sweep.SpanDays)
		fmt.Fprintf(os.Stderr, "Cache: %v\n\n", cfg.Cache.Enabled)
	}

	p := pipeline.NewPipeline(cfg, st)
	out, err := p.Sweep(ctx, params)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if err := p.Renderer().RenderSweep(out.Report, sweepOut); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if verbose && sweepOut != pipeline.Stdout {
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", sweepOut)
	}
	if cfg.Output.Summary && !noSummary {
		p.Renderer().RenderSummary(out.Report, out.ClassCodes)
	}
	return nil
}

func openStore(cfg *model.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}
