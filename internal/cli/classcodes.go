package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casesweep/internal/pipeline"
	"github.com/ppiankov/casesweep/internal/wiscraper"
)

var (
	includeInactive bool
	builtinCodes    bool
)

// classCodesCmd represents the classcodes command
var classCodesCmd = &cobra.Command{
	Use:   "classcodes",
	Short: "List the portal's case class codes",
	Long: `Classcodes fetches the class code table the advanced search form uses.
With --builtin it prints the list swept when no --class-code is given.

Example:
  casesweep classcodes
  casesweep classcodes --include-inactive
  casesweep classcodes --builtin`,
	Args: cobra.NoArgs,
	RunE: runClassCodes,
}

func init() {
	rootCmd.AddCommand(classCodesCmd)

	classCodesCmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "include retired class codes")
	classCodesCmd.Flags().BoolVar(&builtinCodes, "builtin", false, "print the built-in default list instead of querying the portal")
}

func runClassCodes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	p := pipeline.NewPipeline(cfg, nil)
	p.Renderer().Stdout = cmd.OutOrStdout()

	if builtinCodes {
		defaults := wiscraper.DefaultClassCodes()
		entries := make([]pipeline.ClassCodeEntry, len(defaults))
		for i, c := range defaults {
			entries[i] = pipeline.ClassCodeEntry{Code: c.Code, Description: c.Label, Active: true}
		}
		p.Renderer().RenderClassCodes(entries)
		return nil
	}

	entries, err := p.ClassCodes(cmd.Context(), includeInactive)
	if err != nil {
		return fmt.Errorf("list class codes: %w", err)
	}
	p.Renderer().RenderClassCodes(entries)
	return nil
}
