// internal/model/campaign_state.go
package model

import (
	"slices"
	"time"
)

// CampaignState is the persisted progress record of one campaign.
type CampaignState struct {
	CampaignID         string    `db:"campaign_id" json:"campaign_id"`
	AccountID          string    `db:"account_id" json:"account_id"`
	IsRunning          bool      `db:"is_running" json:"is_running"`
	RequestsSentToday  int       `db:"requests_sent_today" json:"requests_sent_today"`
	LastResetDate      time.Time `db:"last_reset_date" json:"last_reset_date"`
	ProcessedUsers     []string  `db:"processed_users" json:"processed_users"`
	ProcessedPosts     []string  `db:"processed_posts" json:"processed_posts"`
	PendingTaskHandles []string  `db:"pending_task_handles" json:"pending_task_handles"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

func NewCampaignState(campaignID, accountID string, now time.Time) *CampaignState {
	return &CampaignState{
		CampaignID:         campaignID,
		AccountID:          accountID,
		IsRunning:          true,
		LastResetDate:      now,
		ProcessedUsers:     []string{},
		ProcessedPosts:     []string{},
		PendingTaskHandles: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Processed returns the processed identifiers for the given campaign type.
func (s *CampaignState) Processed(t CampaignType) []string {
	if t == CampaignTypeCommenting {
		return s.ProcessedPosts
	}
	return s.ProcessedUsers
}

// MarkProcessed appends id to the processed set. The set never shrinks and
// never holds duplicates.
func (s *CampaignState) MarkProcessed(t CampaignType, id string) {
	if t == CampaignTypeCommenting {
		if !slices.Contains(s.ProcessedPosts, id) {
			s.ProcessedPosts = append(s.ProcessedPosts, id)
		}
		return
	}
	if !slices.Contains(s.ProcessedUsers, id) {
		s.ProcessedUsers = append(s.ProcessedUsers, id)
	}
}

func (s *CampaignState) Clone() *CampaignState {
	c := *s
	c.ProcessedUsers = slices.Clone(s.ProcessedUsers)
	c.ProcessedPosts = slices.Clone(s.ProcessedPosts)
	c.PendingTaskHandles = slices.Clone(s.PendingTaskHandles)
	return &c
}
