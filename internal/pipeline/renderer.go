package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ppiankov/casesweep/internal/detail"
	"github.com/ppiankov/casesweep/internal/model"
	"github.com/ppiankov/casesweep/internal/wiscraper"
)

// Stdout is the path value that sends a document to standard output
const Stdout = "-"

// Renderer writes reports to files or the process streams
type Renderer struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewRenderer creates a renderer on the process streams
func NewRenderer() *Renderer {
	return &Renderer{Stdout: os.Stdout, Stderr: os.Stderr}
}

// RenderSweep writes the sweep payload as indented JSON
func (r *Renderer) RenderSweep(report *model.SweepReport, path string) error {
	if report.Cases == nil {
		report.Cases = []wiscraper.FlatCase{}
	}
	return r.writeJSON(report, path)
}

// RenderDetails writes one JSON array entry per envelope
func (r *Renderer) RenderDetails(envs []detail.Envelope, path string) error {
	if envs == nil {
		envs = []detail.Envelope{}
	}
	return r.writeJSON(envs, path)
}

// RenderPartiesCSV writes every party of every envelope, header first
func (r *Renderer) RenderPartiesCSV(envs []detail.Envelope, path string) error {
	return r.write(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(detail.PartyColumns); err != nil {
			return err
		}
		for _, env := range envs {
			for _, p := range env.Parties {
				if err := cw.Write(partyRow(p)); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func partyRow(p detail.PartyRecord) []string {
	return []string{
		p.CaseNo,
		strconv.Itoa(p.CountyNo),
		p.CountyName,
		p.Caption,
		p.PartyName,
		p.PartyType,
		p.Address,
		p.DOB,
		strconv.FormatBool(p.IsDOBSealed),
		p.RoleStatus,
	}
}

// RenderSummary prints cases per class code on stderr. A case carrying
// several codes counts once per code; the footer counts unique cases.
func (r *Renderer) RenderSummary(report *model.SweepReport, classCodes []wiscraper.ClassCode) {
	labels := make(map[string]string, len(classCodes))
	for _, c := range classCodes {
		labels[c.Code] = c.Label
	}
	counts := make(map[string]int)
	for _, c := range report.Cases {
		for _, code := range c.ClassCodes {
			counts[code]++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Stderr)
	t.AppendHeader(table.Row{"Class code", "Description", "Cases"})
	for _, code := range report.Meta.ClassCodes {
		t.AppendRow(table.Row{code, labels[code], counts[code]})
	}
	t.AppendFooter(table.Row{"", "Unique cases", len(report.Cases)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	_, _ = fmt.Fprintf(r.Stderr, "%s..%s, %d-day windows, %d queries\n",
		report.Meta.Start, report.Meta.End, report.Meta.SpanDays, report.Meta.Queries)
	for _, f := range report.Meta.Failures {
		_, _ = fmt.Fprintf(r.Stderr, "  failed: %s\n", f)
	}
}

// RenderDetailSummary prints one line per case that could not be read
func (r *Renderer) RenderDetailSummary(envs []detail.Envelope) {
	var failed, parties int
	for _, env := range envs {
		parties += len(env.Parties)
		if env.Error != "" {
			failed++
		}
	}
	_, _ = fmt.Fprintf(r.Stderr, "%d cases, %d parties, %d failed\n", len(envs), parties, failed)
	for _, env := range envs {
		if env.Error != "" {
			_, _ = fmt.Fprintf(r.Stderr, "  %s (county %d): %s\n", env.Case.CaseNo, env.Case.CountyNo, env.Error)
		}
	}
}

// RenderClassCodes prints the portal's class-code list on stdout
func (r *Renderer) RenderClassCodes(entries []ClassCodeEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(r.Stdout)
	t.AppendHeader(table.Row{"Code", "Description", "Active"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Code, e.Description, e.Active})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func (r *Renderer) writeJSON(v any, path string) error {
	return r.write(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// write sends output to stdout for "" or "-", otherwise to path through a
// temp file renamed into place
func (r *Renderer) write(path string, fn func(io.Writer) error) (err error) {
	if path == "" || path == Stdout {
		return fn(r.Stdout)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
