package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/bucket/memqueue"
	"github.com/sitefed/labwork/internal/cliexit"
	"github.com/sitefed/labwork/internal/notify"
	"github.com/sitefed/labwork/internal/registry"
	"github.com/sitefed/labwork/internal/runner"
)

// NewRunCmd builds `labctl run`: the withdraw/execute/update loop.
func NewRunCmd() *cobra.Command {
	var (
		pipeline string
		site     string
		lifetime int
		local    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the withdraw/execute/update loop for a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipeline == "" {
				return fmt.Errorf("--pipeline is required")
			}

			bc, cleanup, err := bucketClient(cmd, local)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := newLogger(cmd, "runner")

			r := &runner.Runner{
				Bucket:        bc,
				Registry:      registry.New(),
				Pipeline:      pipeline,
				Filter:        bucket.Filter{Site: site},
				Lifetime:      lifetime,
				SleepInterval: time.Second,
				Notifier:      notify.NewLoggingNotifier(logger),
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info("runner starting", map[string]interface{}{"pipeline": pipeline, "site": site})
			if err := r.Run(ctx); err != nil {
				logger.Error("runner exited with error", map[string]interface{}{"error": err.Error()})
				return cliexit.Backend(err)
			}
			logger.Info("runner exited gracefully", nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Pipeline name to withdraw Work for")
	cmd.Flags().StringVar(&site, "site", "", "Restrict withdrawal to a single site")
	cmd.Flags().IntVar(&lifetime, "lifetime", 0, "Stop after this many Work items (0 = unbounded)")
	cmd.Flags().StringVar(&local, "local", "", "Use a local sqlite bucket fake at this path instead of the workspace's bucket service")
	return cmd
}

// bucketClient builds the runner's bucket dependency: either the
// workspace's HTTP bucket service, or a same-process sqlite fake when
// --local is set (labctl's local/dev path, exercising
// internal/bucket/memqueue's atomic-dequeue contract without any
// external service).
func bucketClient(cmd *cobra.Command, localPath string) (interface {
	runner.BucketClient
}, func(), error) {
	if localPath != "" {
		q, err := memqueue.Open(localPath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open local bucket: %w", err)
		}
		return q, func() { q.Close() }, nil
	}

	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return nil, func() {}, err
	}
	tc, err := newTransportClient(ws.HTTP.BaseURLs.Buckets, "/healthz")
	if err != nil {
		return nil, func() {}, fmt.Errorf("build bucket transport: %w", err)
	}
	return bucket.New(tc), func() {}, nil
}
