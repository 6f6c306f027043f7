package notify

import (
	"context"

	"github.com/pcnpilot/pcnpilot/internal/common"
)

// Notifier delivers a composed message. Implementations wrap the external
// email service; failures are logged by the pipeline, never retried as part
// of the generating job.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier records the dispatch through the common logger. Used when no
// email collaborator is configured and as the test default.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	common.Logger().Info("notify: message composed",
		"ticket_id", msg.TicketID,
		"subject", msg.Subject,
		"attachment", msg.AttachmentRef,
	)
	return nil
}
