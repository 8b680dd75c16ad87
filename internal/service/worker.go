package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// OwnerRepository defines the methods the worker needs
type OwnerRepository interface {
	GetByCampaign(ctx context.Context, campaignID string) (*model.Owner, error)
}

// SendFunc delivers one email.
type SendFunc func(ctx context.Context, to, subject, body string) error

// NotificationWorker emails a campaign's owner when its run completes or is
// stopped. Other lifecycle events are ignored.
type NotificationWorker struct {
	Owners OwnerRepository
	Send   SendFunc
	Log    logger.Logger
}

func NewNotificationWorker(owners OwnerRepository, send SendFunc, log logger.Logger) *NotificationWorker {
	return &NotificationWorker{Owners: owners, Send: send, Log: log}
}

// Handle processes one event. A returned error asks the queue to retry.
func (w *NotificationWorker) Handle(ctx context.Context, evt model.CampaignEvent) error {
	subject, body, ok := notification(evt)
	if !ok {
		return nil
	}
	log := w.Log.With(logger.String("campaign_id", evt.CampaignID), logger.String("event", evt.Type))

	owner, err := w.Owners.GetByCampaign(ctx, evt.CampaignID)
	if err != nil {
		log.Warn("failed to find campaign owner", logger.Error(err))
		return err
	}
	if owner.Email == "" {
		log.Info("owner has no email address, skipping notification")
		return nil
	}

	if err := w.Send(ctx, owner.Email, subject, fmt.Sprintf("Hi %s,\n\n%s\n", firstName(owner.FullName), body)); err != nil {
		log.Warn("failed to send notification", logger.Error(err))
		return err
	}
	log.Info("owner notified", logger.String("owner_id", owner.ID))
	return nil
}

func notification(evt model.CampaignEvent) (subject, body string, ok bool) {
	switch evt.Type {
	case model.EventCompleted:
		return "Your campaign has finished",
			fmt.Sprintf("Your %s campaign has processed all %d targets.", evt.CampaignType, evt.Processed), true
	case model.EventStopped:
		return "Your campaign was stopped",
			fmt.Sprintf("Your %s campaign was stopped after %d targets.", evt.CampaignType, evt.Processed), true
	}
	return "", "", false
}

func firstName(full string) string {
	return UserPlaceholders(model.User{Name: full})["first_name"]
}
