package engine

import (
	"context"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// StateStore persists CampaignState documents.
type StateStore interface {
	// Find returns appErrors.ErrStateNotFound when no state exists.
	Find(ctx context.Context, campaignID string) (*model.CampaignState, error)
	ListRunning(ctx context.Context) ([]*model.CampaignState, error)
	Create(ctx context.Context, s *model.CampaignState) error
	Save(ctx context.Context, s *model.CampaignState) error
}

// CampaignStore is the campaign document storage the engine reads from and
// writes unit statuses to.
type CampaignStore interface {
	// LoadDetail returns *appErrors.ErrCampaignNotFound for unknown ids.
	LoadDetail(ctx context.Context, campaignID string) (*model.CampaignDetail, error)
	SetToggled(ctx context.Context, t model.CampaignType, campaignID string, on bool) error
	UpdatePostStatus(ctx context.Context, campaignID, postID, status string, sendAt *time.Time) error
	MarkUserSent(ctx context.Context, campaignID, userID string) error
}

// ActionService performs the outbound social-network actions.
type ActionService interface {
	PostComment(ctx context.Context, accountID, postID, text string) error
	SendConnectionRequest(ctx context.Context, accountID, identifier, message string) error
	SendDM(ctx context.Context, accountID, identifier, text string) error
}

type Publisher interface {
	Publish(topic string, payload any) error
}

// Lease guarantees a single run loop per campaign across processes.
type Lease interface {
	Acquire(ctx context.Context, key string) (bool, error)
	// Extend returns false when the lease is no longer held by this owner.
	Extend(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Unit outcomes reported to Metrics.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics receives run-loop counters.
type Metrics interface {
	UnitDone(t model.CampaignType, outcome string)
	FollowUpDone(ok bool)
	Lifecycle(event string)
	ActiveRuns(n int)
}

type nopMetrics struct{}

func (nopMetrics) UnitDone(model.CampaignType, string) {}
func (nopMetrics) FollowUpDone(bool)                   {}
func (nopMetrics) Lifecycle(string)                    {}
func (nopMetrics) ActiveRuns(int)                      {}

// Clock schedules deferred work. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
