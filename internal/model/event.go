// internal/model/event.go
package model

import "time"

const (
	EventStarted    = "started"
	EventCapReached = "cap_reached"
	EventCompleted  = "completed"
	EventStopped    = "stopped"
)

// CampaignEvent is published on every run-loop lifecycle transition.
type CampaignEvent struct {
	Type              string       `json:"type"`
	CampaignID        string       `json:"campaign_id"`
	AccountID         string       `json:"account_id"`
	CampaignType      CampaignType `json:"campaign_type"`
	RequestsSentToday int          `json:"requests_sent_today"`
	Processed         int          `json:"processed"`
	At                time.Time    `json:"at"`
}
