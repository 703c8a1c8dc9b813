package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-health/rulesmith/internal/designer"
	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
	"github.com/opensource-health/rulesmith/internal/preview"
)

var (
	compileFile   string
	compileSample string
	compileStrict bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a rule form into a create-rule payload",
	Long: `Compile reads a rule form as JSON (from --file, or stdin when the file is "-")
and prints the payload the designer would submit. With --sample the payload is
also simulated against a JSON object of factor values.`,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringVarP(&compileFile, "file", "f", "-", "rule form JSON file")
	compileCmd.Flags().StringVar(&compileSample, "sample", "", "sample factor values JSON file to preview against")
	compileCmd.Flags().BoolVar(&compileStrict, "strict", false, "reject non-numeric values for NUMBER factors")
}

func runCompile(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd, compileFile)
	if err != nil {
		return err
	}

	form := designer.NewForm(time.Now())
	if err := json.Unmarshal(raw, &form); err != nil {
		return fmt.Errorf("invalid rule form: %w", err)
	}

	taxonomy := factors.DefaultTaxonomy()
	var parser factors.ValueParser = factors.NewLenientParser(taxonomy)
	if compileStrict {
		parser = factors.NewStrictParser(taxonomy)
	}

	payload, err := designer.NewCompiler(parser).Compile(form)
	if err != nil {
		var validation *designer.ValidationErrors
		if errors.As(err, &validation) {
			for _, issue := range validation.Issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", issue.Tab, issue.Message)
			}
			return fmt.Errorf("rule form is invalid (focus %s tab)", designer.FocusTab(err))
		}
		return err
	}

	out := any(payload)
	if compileSample != "" {
		sample, err := readSample(cmd, compileSample)
		if err != nil {
			return err
		}
		sim, err := preview.NewSimulator(parser)
		if err != nil {
			return err
		}
		result, err := sim.Simulate(payload, sample)
		if err != nil {
			return err
		}
		out = struct {
			Payload *domain.CreateRuleRequest `json:"payload"`
			Preview *preview.Result           `json:"preview"`
		}{payload, result}
	}

	return writeIndented(cmd.OutOrStdout(), out)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func readSample(cmd *cobra.Command, path string) (map[string]any, error) {
	raw, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	var sample map[string]any
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, fmt.Errorf("invalid sample: %w", err)
	}
	return sample, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
