package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/bucket"
	"github.com/sitefed/labwork/internal/bucket/memqueue"
	"github.com/sitefed/labwork/internal/work"
)

// NewDepositCmd builds `labctl deposit`: validate and submit a Work
// payload to the bucket.
func NewDepositCmd() *cobra.Command {
	var (
		file  string
		local string
	)

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Validate and submit a Work payload to the bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			w := work.New()
			if err := json.Unmarshal(raw, w); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			var allowedSites []string
			if local == "" {
				ws, err := resolveWorkspace(cmd)
				if err != nil {
					return err
				}
				allowedSites = ws.AllowedSites()
			}

			validator := &work.Validator{Strategy: work.Strict, AllowedSites: allowedSites}
			if err := validator.Validate(w, raw); err != nil {
				return err
			}

			ids, err := depositWork(cmd, local, w)
			if err != nil {
				return err
			}

			logger := newLogger(cmd, "deposit")
			logger.Info("work deposited", map[string]interface{}{"ids": ids})
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to a JSON Work payload")
	cmd.Flags().StringVar(&local, "local", "", "Use a local sqlite bucket fake at this path instead of the workspace's bucket service")
	return cmd
}

func depositWork(cmd *cobra.Command, local string, w *work.Work) ([]string, error) {
	if local != "" {
		q, err := memqueue.Open(local)
		if err != nil {
			return nil, fmt.Errorf("open local bucket: %w", err)
		}
		defer q.Close()
		return q.Deposit(cmd.Context(), []*work.Work{w})
	}

	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return nil, err
	}
	tc, err := newTransportClient(ws.HTTP.BaseURLs.Buckets, "/healthz")
	if err != nil {
		return nil, fmt.Errorf("build bucket transport: %w", err)
	}
	return bucket.New(tc).Deposit(cmd.Context(), []*work.Work{w})
}
