package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/bucket/memqueue"
	"github.com/sitefed/labwork/internal/cliexit"
	"github.com/sitefed/labwork/internal/results"
	"github.com/sitefed/labwork/internal/transfer"
)

// NewTransferCmd builds `labctl transfer`: the periodic
// archive/record/delete daemon.
func NewTransferCmd() *cobra.Command {
	var (
		pipeline  string
		site      string
		interval  time.Duration
		batchSize int
		once      bool
		local     string
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Archive and record terminal Work out of the bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}

			ws, err := resolveWorkspace(cmd)
			if err != nil {
				return err
			}

			var bc transfer.BucketClient
			if local != "" {
				q, err := memqueue.Open(local)
				if err != nil {
					return fmt.Errorf("open local bucket: %w", err)
				}
				defer q.Close()
				bc = q
			} else {
				tc, err := newTransportClient(ws.HTTP.BaseURLs.Buckets, "/healthz")
				if err != nil {
					return fmt.Errorf("build bucket transport: %w", err)
				}
				bc = bucket.New(tc)
			}

			resultsTC, err := newTransportClient(ws.HTTP.BaseURLs.Results, "/healthz")
			if err != nil {
				return fmt.Errorf("build results transport: %w", err)
			}

			logger := newLogger(cmd, "transfer")

			d := &transfer.Daemon{
				Bucket:    bc,
				Results:   results.New(resultsTC),
				Workspace: ws,
				Pipeline:  pipeline,
				Site:      site,
				BatchSize: batchSize,
				Interval:  interval,
				OnBatchError: func(err error) {
					logger.Warn("transfer batch error", map[string]interface{}{"error": err.Error()})
				},
			}

			if once {
				result, err := d.RunOnce(cmd.Context())
				if err != nil {
					return cliexit.Backend(err)
				}
				logger.Info("transfer batch complete", map[string]interface{}{
					"succeeded": result.Succeeded,
					"failed":    result.Failed,
				})
				return nil
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return cliexit.Backend(d.Run(ctx))
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline name to transfer Work for")
	cmd.Flags().StringVar(&site, "site", "", "Restrict transfer to a single site")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Time between batches")
	cmd.Flags().IntVar(&batchSize, "batch-size", transfer.DefaultBatchSize, "Maximum terminal Work items listed per batch")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single batch and exit instead of looping")
	cmd.Flags().StringVar(&local, "local", "", "Use a local sqlite bucket fake at this path instead of the workspace's bucket service")
	return cmd
}
