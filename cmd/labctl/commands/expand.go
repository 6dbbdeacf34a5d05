package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/bucket/memqueue"
	"github.com/sitefed/labwork/internal/pipeline"
	"github.com/sitefed/labwork/internal/pipelinesmgr"
)

// NewExpandCmd builds `labctl expand`: print the stage-ordered Work
// list a Pipeline Configuration document would deposit, optionally
// register the configuration (and its cron schedule, if any) with the
// pipelines manager, and optionally drive the stage-by-stage deposit
// itself instead of just printing a preview.
func NewExpandCmd() *cobra.Command {
	var (
		register bool
		apply    bool
		local    string
	)

	cmd := &cobra.Command{
		Use:   "expand <pipeline.yml>",
		Short: "Expand a Pipeline Configuration into its concrete Work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			cfg, err := pipeline.Parse(data)
			if err != nil {
				return err
			}
			steps, err := pipeline.Expand(cfg)
			if err != nil {
				return err
			}

			if register {
				if err := registerWithPipelinesManager(cmd, cfg); err != nil {
					return err
				}
			}

			if apply {
				return applyPipeline(cmd, local, cfg)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(steps)
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "Register the configuration (and its cron schedule, if set) with the pipelines manager before printing the expansion")
	cmd.Flags().BoolVar(&apply, "apply", false, "Deposit the expansion stage by stage, gating each stage's steps on the outcome of all prior stages, instead of printing a preview")
	cmd.Flags().StringVar(&local, "local", "", "Use a local sqlite bucket fake at this path instead of the workspace's bucket service (with --apply)")
	return cmd
}

// applyPipeline drives cfg's stage-by-stage deposit against the
// bucket, gating each stage's steps on the aggregate outcome of all
// prior stages and blocking between stages until the current one is
// terminal (see internal/pipeline.Driver).
func applyPipeline(cmd *cobra.Command, local string, cfg *pipeline.Configuration) error {
	var bc pipeline.BucketClient
	if local != "" {
		q, err := memqueue.Open(local)
		if err != nil {
			return fmt.Errorf("open local bucket: %w", err)
		}
		defer q.Close()
		bc = q
	} else {
		ws, err := resolveWorkspace(cmd)
		if err != nil {
			return err
		}
		tc, err := newTransportClient(ws.HTTP.BaseURLs.Buckets, "/healthz")
		if err != nil {
			return fmt.Errorf("build bucket transport: %w", err)
		}
		bc = bucket.New(tc)
	}

	driver := &pipeline.Driver{Bucket: bc}
	result, err := driver.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, "expand")
	logger.Info("pipeline applied", map[string]interface{}{
		"deposited": result.Deposited,
		"skipped":   result.Skipped,
	})
	return nil
}

// registerWithPipelinesManager submits cfg to the workspace's
// pipelines manager service and, when cfg.Schedule.Cronspec is set,
// registers its cron schedule against the returned configuration id.
// A Schedule.Count of 0 means the schedule is unbounded; that is the
// pipelines manager's interpretation to make, not this client's, so it
// is passed through unmodified.
func registerWithPipelinesManager(cmd *cobra.Command, cfg *pipeline.Configuration) error {
	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return err
	}
	tc, err := newTransportClient(ws.HTTP.BaseURLs.Pipelines, "/healthz")
	if err != nil {
		return fmt.Errorf("build pipelines manager transport: %w", err)
	}
	client := pipelinesmgr.New(tc)

	id, err := client.Register(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("register configuration %s: %w", cfg.Name, err)
	}

	if cfg.Schedule != nil && cfg.Schedule.Cronspec != "" {
		if _, err := client.ScheduleRegister(cmd.Context(), id, cfg.Schedule); err != nil {
			return fmt.Errorf("register schedule for configuration %s: %w", cfg.Name, err)
		}
	}

	logger := newLogger(cmd, "expand")
	logger.Info("configuration registered", map[string]interface{}{
		"id":        id,
		"name":      cfg.Name,
		"scheduled": cfg.Schedule != nil && cfg.Schedule.Cronspec != "",
	})
	return nil
}
