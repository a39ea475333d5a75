// Package notify delivers quota threshold alerts to operators.
package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/providers/email"
	"github.com/smallbiznis/reachway/internal/quota/domain"
	"go.uber.org/zap"
)

type EmailNotifier struct {
	log      *zap.Logger
	provider email.Provider
	to       string
}

func NewEmailNotifier(log *zap.Logger, provider email.Provider, to string) domain.Notifier {
	return &EmailNotifier{
		log:      log.Named("quota.notify"),
		provider: provider,
		to:       to,
	}
}

func (n *EmailNotifier) NotifyCreditThreshold(ctx context.Context, orgID snowflake.ID, used, limit int64) {
	n.log.Info("messaging credit threshold crossed",
		zap.String("org_id", orgID.String()),
		zap.Int64("used", used),
		zap.Int64("limit", limit),
	)
	if n.to == "" {
		return
	}

	subject := fmt.Sprintf("Organization %s reached 80%% of its messaging credits", orgID.String())
	body := fmt.Sprintf(
		"<p>Organization <b>%s</b> has used %d of %d messaging credits this period.</p>",
		orgID.String(), used, limit,
	)
	if err := n.provider.Send(ctx, []string{n.to}, subject, body); err != nil {
		n.log.Warn("failed to send credit threshold alert", zap.Error(err))
	}
}
