package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"ticket-inventory/models"
)

// Notifier pushes realtime updates. Failures are logged and never undo the
// state change that triggered them.
type Notifier interface {
	TicketActivated(ctx context.Context, t *models.Ticket)
	TicketCheckedIn(ctx context.Context, a *models.Admission)
}

type NopNotifier struct{}

func (NopNotifier) TicketActivated(context.Context, *models.Ticket)    {}
func (NopNotifier) TicketCheckedIn(context.Context, *models.Admission) {}

type publishFunc func(channel string, message any) error

type PubNubNotifier struct {
	publish publishFunc
	logger  *slog.Logger
}

func NewPubNubNotifier(pn *pubnub.PubNub, logger *slog.Logger) *PubNubNotifier {
	return &PubNubNotifier{
		publish: func(channel string, message any) error {
			_, _, err := pn.Publish().Channel(channel).Message(message).Execute()
			return err
		},
		logger: logger,
	}
}

func (n *PubNubNotifier) TicketActivated(_ context.Context, t *models.Ticket) {
	n.send(fmt.Sprintf("ticket-%s", t.ID), map[string]any{
		"type":       "ticket_activated",
		"ticket_id":  t.ID,
		"product_id": t.ProductID,
		"status":     t.Status,
		"timestamp":  time.Now().Unix(),
	})
}

func (n *PubNubNotifier) TicketCheckedIn(_ context.Context, a *models.Admission) {
	if a.EventID == "" {
		return
	}
	n.send(fmt.Sprintf("checkin-%s", a.EventID), map[string]any{
		"type":        "ticket_checked_in",
		"ticket_id":   a.TicketID,
		"holder_name": a.HolderName,
		"product_id":  a.ProductID,
		"admitted_at": a.AdmittedAt,
	})
}

func (n *PubNubNotifier) send(channel string, message map[string]any) {
	if err := n.publish(channel, message); err != nil {
		n.logger.Warn("pubnub publish failed", "channel", channel, "type", message["type"], "error", err)
	}
}
