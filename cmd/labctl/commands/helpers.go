package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitefed/labwork/internal/logging"
	"github.com/sitefed/labwork/internal/transport"
	"github.com/sitefed/labwork/internal/workspace"
)

func resolveWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	ref, _ := cmd.Flags().GetString("workspace")
	ws, err := workspace.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return ws, nil
}

func newLogger(cmd *cobra.Command, component string) *logging.Logger {
	return logging.New(os.Stdout, component)
}

func newTransportClient(baseURLs []string, healthPath string) (*transport.Client, error) {
	if len(baseURLs) == 0 {
		return nil, fmt.Errorf("no base URLs configured for this service")
	}
	return transport.New(transport.Config{BaseURLs: baseURLs, HealthPath: healthPath})
}
