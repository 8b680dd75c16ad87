// internal/model/campaign.go
package model

import (
	"strings"
	"time"
)

type CampaignType string

const (
	CampaignTypeConnection CampaignType = "Connection"
	CampaignTypeCommenting CampaignType = "Commenting"
)

func (t CampaignType) Valid() bool {
	return t == CampaignTypeConnection || t == CampaignTypeCommenting
}

// Post approval actions.
const (
	ActionPending  = "Pending"
	ActionApproved = "Approved"
)

// Post statuses written by the engine.
const (
	PostStatusAwaitingApproval = "awaiting-approval"
	PostStatusSent             = "sent"
	PostStatusNotFound         = "not-found/failed"
	postStatusScheduledPrefix  = "scheduled-at:"
)

// ScheduledAtStatus renders the status shown while a comment waits out its delay.
func ScheduledAtStatus(at time.Time) string {
	return postStatusScheduledPrefix + at.UTC().Format(time.RFC3339)
}

func IsScheduledStatus(status string) bool {
	return strings.HasPrefix(status, postStatusScheduledPrefix)
}

// User is a connection target inside a Connection campaign.
type User struct {
	ID               string  `db:"id" json:"id"`
	Name             string  `db:"name" json:"name"`
	Headline         string  `db:"headline" json:"headline,omitempty"`
	PublicIdentifier *string `db:"public_identifier" json:"public_identifier"`
	Sent             bool    `db:"status" json:"status"`
}

func (u User) HasIdentifier() bool {
	return u.PublicIdentifier != nil && strings.TrimSpace(*u.PublicIdentifier) != ""
}

// Post is a comment target inside a Commenting campaign. ID is the row id,
// PostID the id on the social network.
type Post struct {
	ID       string     `db:"id" json:"id"`
	PostID   string     `db:"post_id" json:"post_id"`
	Name     string     `db:"name" json:"name"`
	Headline string     `db:"headline" json:"headline,omitempty"`
	ShareURL string     `db:"share_url" json:"share_url"`
	Text     string     `db:"text" json:"text,omitempty"`
	Comment  string     `db:"comment" json:"comment"`
	Action   string     `db:"action" json:"action"`
	Status   string     `db:"status" json:"status"`
	SendTime *time.Time `db:"send_time" json:"send_time,omitempty"`
}

func (p Post) Approved() bool {
	return p.Action == ActionApproved
}

type ConnectionCampaign struct {
	ID                string    `db:"id" json:"id"`
	OwnerID           string    `db:"owner_id" json:"user_id"`
	Name              string    `db:"name" json:"name"`
	CreatedOn         time.Time `db:"created_on" json:"created_on"`
	Users             []User    `json:"users"`
	ConnectionMessage string    `db:"connection_message" json:"connection_request_message"`
	FollowUpMessage   string    `db:"follow_up_message" json:"follow_up_message"`
	DMTime            int       `db:"dm_time" json:"dm_time"`
	IsToggled         bool      `db:"is_toggled" json:"is_toggled"`
}

type CommentCampaign struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedOn time.Time `db:"created_on" json:"created_on"`
	Posts     []Post    `json:"posts"`
	IsToggled bool      `db:"is_toggled" json:"is_toggled"`
}

// CampaignDetail is the snapshot the engine runs against.
type CampaignDetail struct {
	CampaignID      string       `json:"campaign_id"`
	AccountID       string       `json:"account_id"`
	Type            CampaignType `json:"type"`
	Users           []User       `json:"users,omitempty"`
	Posts           []Post       `json:"posts,omitempty"`
	Message         string       `json:"message,omitempty"`
	FollowUpMessage string       `json:"follow_up_message,omitempty"`
	DMTime          int          `json:"dm_time,omitempty"`
}

// FollowUpDelay converts the campaign's dm_time (minutes) to a duration.
func (d *CampaignDetail) FollowUpDelay() time.Duration {
	if d.DMTime <= 0 {
		return 0
	}
	return time.Duration(d.DMTime) * time.Minute
}

func (c *ConnectionCampaign) Detail(accountID string) *CampaignDetail {
	return &CampaignDetail{
		CampaignID:      c.ID,
		AccountID:       accountID,
		Type:            CampaignTypeConnection,
		Users:           c.Users,
		Message:         c.ConnectionMessage,
		FollowUpMessage: c.FollowUpMessage,
		DMTime:          c.DMTime,
	}
}

func (c *CommentCampaign) Detail(accountID string) *CampaignDetail {
	return &CampaignDetail{
		CampaignID: c.ID,
		AccountID:  accountID,
		Type:       CampaignTypeCommenting,
		Posts:      c.Posts,
	}
}

// CampaignSummary is one row of an owner's campaign list.
type CampaignSummary struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Type      CampaignType `db:"type" json:"type"`
	CreatedOn time.Time    `db:"created_on" json:"created_on"`
	IsToggled bool         `db:"is_toggled" json:"is_toggled"`
	Targets   int          `db:"targets" json:"targets"`
}
