package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/pipeline"
	"github.com/sitefed/labwork/internal/work"
)

// NewValidateCmd builds `labctl validate`: check a Pipeline
// Configuration or a Work payload without submitting it anywhere.
func NewValidateCmd() *cobra.Command {
	var (
		pipelineFile string
		workFile     string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a Pipeline Configuration or Work payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case pipelineFile != "" && workFile != "":
				return fmt.Errorf("specify exactly one of --pipeline-file or --work-file")
			case pipelineFile != "":
				return validatePipelineFile(cmd, pipelineFile)
			case workFile != "":
				return validateWorkFile(cmd, workFile)
			default:
				return fmt.Errorf("specify exactly one of --pipeline-file or --work-file")
			}
		},
	}

	cmd.Flags().StringVar(&pipelineFile, "pipeline-file", "", "Path to a Pipeline Configuration YAML file")
	cmd.Flags().StringVar(&workFile, "work-file", "", "Path to a JSON Work payload")
	return cmd
}

func validatePipelineFile(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := pipeline.Parse(data)
	if err != nil {
		return err
	}
	if violations := pipeline.ValidateReferences(cfg); len(violations) > 0 {
		return fmt.Errorf("pipeline configuration has unresolved step references:\n  %s", strings.Join(violations, "\n  "))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
	return nil
}

func validateWorkFile(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	w := work.New()
	if err := json.Unmarshal(raw, w); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	var allowedSites []string
	if ws, err := resolveWorkspace(cmd); err == nil {
		allowedSites = ws.AllowedSites()
	}

	validator := &work.Validator{Strategy: work.Strict, AllowedSites: allowedSites}
	if err := validator.Validate(w, raw); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
	return nil
}
