package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casesweep/internal/detail"
	"github.com/ppiankov/casesweep/internal/model"
	"github.com/ppiankov/casesweep/internal/pipeline"
)

var (
	detailSweep      sweepFlags
	detailFromDB     bool
	detailInput      string
	detailCasesFile  string
	detailOffset     int
	detailLimit      int
	detailNoIndex    bool
	detailOut        string
	detailPartiesCSV string
)

// detailsCmd represents the details command
var detailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Open each case page in a browser and extract its parties",
	Long: `Details visits the case detail page of every selected case in one browser
tab, reads the case JSON the page keeps in session storage (or the rendered
HTML when there is none) and writes one entry per case plus a parties CSV.

Cases come from exactly one of:
  --input FILE      a sweep JSON written by "casesweep sweep"
  --from-db         the latest sweep stored with --db
  --cases-file FILE lines of "caseNo countyNo"
  --start DATE ...  a fresh sweep with the usual sweep flags

The browser is headed by default. If the portal shows a check, complete it
in the window; the run waits for the case content to appear.

Example:
  casesweep details --input sweep.json --parties-csv parties.csv
  casesweep details --from-db --db ~/.casesweep/casesweep.db --offset 50 --limit 25
  casesweep details --start 2025-01-01 --class-code 30401 -o details.json`,
	Args: cobra.NoArgs,
	RunE: runDetails,
}

func init() {
	rootCmd.AddCommand(detailsCmd)

	flags := detailsCmd.Flags()
	detailSweep.register(detailsCmd)
	flags.BoolVar(&detailFromDB, "from-db", false, "use the latest sweep stored in --db")
	flags.StringVar(&detailInput, "input", "", "sweep JSON to read cases from")
	flags.StringVar(&detailCasesFile, "cases-file", "", `file of "caseNo countyNo" lines`)
	flags.IntVar(&detailOffset, "offset", 0, "skip this many cases")
	flags.IntVar(&detailLimit, "limit", 0, "visit at most this many cases (0 means all)")
	flags.String("profile", "", "browser profile directory kept between runs")
	flags.Bool("headless", false, "run the browser without a window")
	flags.BoolVar(&detailNoIndex, "no-index", false, "leave the result index out of detail links")
	flags.StringVarP(&detailOut, "output", "o", pipeline.Stdout, `details JSON path ("-" for stdout)`)
	flags.StringVar(&detailPartiesCSV, "parties-csv", "", "also write parties as CSV to this path")
}

func runDetails(cmd *cobra.Command, args []string) error {
	bindings := map[string]string{
		"detail.profile":  "profile",
		"detail.headless": "headless",
	}
	for k, v := range sweepBindings {
		bindings[k] = v
	}
	cfg, err := loadConfig(cmd, bindings)
	if err != nil {
		return err
	}
	if detailNoIndex {
		cfg.Detail.UseResultIndex = false
	}

	ctx := cmd.Context()
	if detailSweep.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, detailSweep.timeout)
		defer cancel()
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}
	p := pipeline.NewPipeline(cfg, st)

	runID, refs, err := detailCases(ctx, cfg, p)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d cases\n", len(refs))
	}

	envs, runErr := p.Details(ctx, refs, pipeline.DetailParams{
		RunID:  runID,
		Offset: detailOffset,
		Limit:  detailLimit,
		Prompt: os.Stderr,
		OnCase: func(done, total int, env detail.Envelope) {
			if !verbose {
				return
			}
			if env.Error != "" {
				fmt.Fprintf(os.Stderr, "✗ [%d/%d] %s: %s\n", done, total, env.Case.CaseNo, env.Error)
				return
			}
			fmt.Fprintf(os.Stderr, "✓ [%d/%d] %s: %d parties (%s)\n", done, total, env.Case.CaseNo, len(env.Parties), env.Source)
		},
	})

	// whatever was read before an interruption is still written out
	if err := p.Renderer().RenderDetails(envs, detailOut); err != nil {
		return errors.Join(runErr, fmt.Errorf("render failed: %w", err))
	}
	if detailPartiesCSV != "" {
		if err := p.Renderer().RenderPartiesCSV(envs, detailPartiesCSV); err != nil {
			return errors.Join(runErr, fmt.Errorf("render parties: %w", err))
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote CSV: %s\n", detailPartiesCSV)
		}
	}
	if cfg.Output.Summary {
		p.Renderer().RenderDetailSummary(envs)
	}
	if runErr != nil {
		return fmt.Errorf("details interrupted: %w", runErr)
	}
	return nil
}

// detailCases resolves the single case source the flags name
func detailCases(ctx context.Context, cfg *model.Config, p *pipeline.Pipeline) (string, []detail.CaseRef, error) {
	sources := 0
	for _, set := range []bool{detailFromDB, detailInput != "", detailCasesFile != "", detailSweep.start != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", nil, errors.New("name exactly one case source: --input, --from-db, --cases-file or --start")
	}

	switch {
	case detailInput != "":
		report, err := readSweepReport(detailInput)
		if err != nil {
			return "", nil, err
		}
		return report.Meta.RunID, detail.RefsFromFlat(report.Cases), nil

	case detailFromDB:
		runID, refs, err := p.StoredCases(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("load stored sweep: %w", err)
		}
		return runID, refs, nil

	case detailCasesFile != "":
		// list entries carry no result index to link with
		cfg.Detail.UseResultIndex = false
		refs, err := readCaseList(detailCasesFile)
		return "", refs, err

	default:
		params, err := detailSweep.params(cfg)
		if err != nil {
			return "", nil, err
		}
		out, err := p.Sweep(ctx, params)
		if err != nil {
			return "", nil, fmt.Errorf("sweep failed: %w", err)
		}
		return out.Report.Meta.RunID, detail.RefsFromFlat(out.Report.Cases), nil
	}
}

func readSweepReport(path string) (*model.SweepReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep: %w", err)
	}
	var report model.SweepReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode sweep %s: %w", path, err)
	}
	return &report, nil
}
