// Package notify dispatches a completed Work item's notification
// config to whatever external channel it names. Message formatting
// and channel delivery themselves are left to that external channel;
// this package only guarantees the "notify on completion" contract is
// exercised end to end, via a Notifier seam a real channel integration
// can later implement.
package notify

import (
	"context"
	"fmt"

	"github.com/sitefed/labwork/internal/logging"
	"github.com/sitefed/labwork/internal/work"
)

// Notifier is the dispatch contract the runner calls once a Work item
// reaches a terminal state and names a Notification config.
type Notifier interface {
	Notify(ctx context.Context, w *work.Work) error
}

// LoggingNotifier is the default Notifier: it records what would have
// been sent without delivering anything, so environments without a
// configured notification channel still get an auditable trail.
type LoggingNotifier struct {
	Logger *logging.Logger
}

func NewLoggingNotifier(logger *logging.Logger) *LoggingNotifier {
	return &LoggingNotifier{Logger: logger.With("notify")}
}

func (n *LoggingNotifier) Notify(ctx context.Context, w *work.Work) error {
	cfg := w.ConfigField.Notification
	if cfg == nil || cfg.Channel == "" {
		return nil
	}

	fields := map[string]interface{}{
		"work_id":  w.ID,
		"pipeline": w.Pipeline,
		"status":   string(w.Status),
		"channel":  cfg.Channel,
	}
	if len(cfg.MemberIDs) > 0 {
		fields["member_ids"] = cfg.MemberIDs
	}
	if cfg.Template != "" {
		fields["template"] = cfg.Template
	}

	included := includedArtifacts(w, cfg)
	if len(included) > 0 {
		fields["included"] = included
	}

	n.Logger.Info(fmt.Sprintf("would notify %s on %s completion", cfg.Channel, w.Status), fields)
	return nil
}

func includedArtifacts(w *work.Work, cfg *work.Notification) []string {
	var included []string
	if cfg.IncludeResults && len(w.Results) > 0 {
		included = append(included, "results")
	}
	if cfg.IncludeProducts && len(w.Products) > 0 {
		included = append(included, "products")
	}
	if cfg.IncludePlots && len(w.Plots) > 0 {
		included = append(included, "plots")
	}
	return included
}
