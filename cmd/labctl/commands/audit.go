package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/audit"
	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/bucket/memqueue"
	"github.com/sitefed/labwork/internal/cliexit"
	"github.com/sitefed/labwork/internal/pipeline"
)

// NewAuditCmd builds `labctl audit`: the periodic reconciliation
// daemon that expires stuck Work, flags stale failures, and cancels
// orphaned steps.
func NewAuditCmd() *cobra.Command {
	var (
		pipelineName string
		site         string
		interval     time.Duration
		buffer       time.Duration
		configsDir   string
		local        string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile bucket state against deadlines and live pipeline configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipelineName == "" {
				return fmt.Errorf("--pipeline is required")
			}
			if configsDir == "" {
				return fmt.Errorf("--configs-dir is required")
			}

			store, errs := pipeline.LoadConfigStore(configsDir)
			if store == nil {
				return fmt.Errorf("load pipeline configurations from %s: %w", configsDir, errs[0])
			}
			logger := newLogger(cmd, "audit")
			for _, e := range errs {
				logger.Warn("skipped pipeline configuration", map[string]interface{}{"error": e.Error()})
			}

			var bc audit.BucketClient
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

			d := &audit.Daemon{
				Bucket:   bc,
				Configs:  store,
				Pipeline: pipelineName,
				Site:     site,
				Buffer:   buffer,
				Interval: interval,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return cliexit.Backend(d.Run(ctx))
		},
	}

	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "Pipeline name to audit")
	cmd.Flags().StringVar(&site, "site", "", "Restrict auditing to a single site")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Time between audit passes")
	cmd.Flags().DurationVar(&buffer, "buffer", audit.DefaultBuffer, "Grace period past a deadline before classification")
	cmd.Flags().StringVar(&configsDir, "configs-dir", "", "Directory of Pipeline Configuration YAML files")
	cmd.Flags().StringVar(&local, "local", "", "Use a local sqlite bucket fake at this path instead of the workspace's bucket service")
	return cmd
}
