package engine

import (
	"context"
	"time"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// Result is the outcome of one fired unit, reported back to the run loop.
type Result struct {
	// Called is false when no external call was made (missing identifier).
	Called   bool
	Err      error
	FollowUp *FollowUp
}

// FollowUp is a direct message owed to a user whose connection request
// went through.
type FollowUp struct {
	CampaignID string
	AccountID  string
	UserID     string
	Identifier string
	Text       string
	Delay      time.Duration
}

// Dispatcher executes single work units against the action service and
// records their per-unit status in the campaign store. It holds no state of
// its own and is safe for concurrent use.
type Dispatcher struct {
	Actions   ActionService
	Campaigns CampaignStore
	Log       logger.Logger
}

func (d *Dispatcher) Execute(ctx context.Context, detail *model.CampaignDetail, u Unit) Result {
	if u.Post != nil {
		return d.comment(ctx, detail, *u.Post)
	}
	return d.connect(ctx, detail, *u.User)
}

func (d *Dispatcher) comment(ctx context.Context, detail *model.CampaignDetail, p model.Post) Result {
	log := d.Log.With(logger.String("campaign_id", detail.CampaignID), logger.String("post_id", p.PostID))

	err := d.Actions.PostComment(ctx, detail.AccountID, p.PostID, p.Comment)
	status := model.PostStatusSent
	if err != nil {
		log.Warn("comment could not be posted", logger.Error(err))
		status = model.PostStatusNotFound
	} else {
		log.Info("comment posted")
	}

	if uerr := d.Campaigns.UpdatePostStatus(ctx, detail.CampaignID, p.ID, status, nil); uerr != nil {
		log.Error("failed to update post status", logger.String("status", status), logger.Error(uerr))
	}
	return Result{Called: true, Err: err}
}

func (d *Dispatcher) connect(ctx context.Context, detail *model.CampaignDetail, u model.User) Result {
	log := d.Log.With(logger.String("campaign_id", detail.CampaignID), logger.String("user_id", u.ID))

	if !u.HasIdentifier() {
		log.Info("user has no public identifier, skipping connection request")
		return Result{}
	}
	identifier := *u.PublicIdentifier
	vars := service.UserPlaceholders(u)

	message := service.RenderTemplate(detail.Message, vars)
	if err := d.Actions.SendConnectionRequest(ctx, detail.AccountID, identifier, message); err != nil {
		log.Warn("connection request failed", logger.Error(err))
		return Result{Called: true, Err: err}
	}
	log.Info("connection request sent")

	if err := d.Campaigns.MarkUserSent(ctx, detail.CampaignID, u.ID); err != nil {
		log.Error("failed to mark user as sent", logger.Error(err))
	}

	res := Result{Called: true}
	if detail.FollowUpMessage != "" {
		res.FollowUp = &FollowUp{
			CampaignID: detail.CampaignID,
			AccountID:  detail.AccountID,
			UserID:     u.ID,
			Identifier: identifier,
			Text:       service.RenderTemplate(detail.FollowUpMessage, vars),
			Delay:      detail.FollowUpDelay(),
		}
	}
	return res
}

// SendFollowUp delivers a follow-up DM. Failures are logged and not retried.
func (d *Dispatcher) SendFollowUp(ctx context.Context, f FollowUp) error {
	log := d.Log.With(logger.String("campaign_id", f.CampaignID), logger.String("user_id", f.UserID))
	if err := d.Actions.SendDM(ctx, f.AccountID, f.Identifier, f.Text); err != nil {
		log.Warn("follow-up message failed", logger.Error(err))
		return err
	}
	log.Info("follow-up message sent")
	return nil
}
