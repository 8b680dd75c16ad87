package engine

import (
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Governor enforces the per-window action cap.
type Governor struct {
	Cap    int
	Window time.Duration
}

// Allow reports whether one more unit may be dispatched given the actions
// already counted in this window and those scheduled but not yet counted.
func (g Governor) Allow(sent, reserved int) bool {
	return sent+reserved < g.Cap
}

func (g Governor) Reset(s *model.CampaignState, now time.Time) {
	s.RequestsSentToday = 0
	s.LastResetDate = now
}

// Roll opens a new window when the last reset is at least one window old.
func (g Governor) Roll(s *model.CampaignState, now time.Time) bool {
	if now.Sub(s.LastResetDate) < g.Window {
		return false
	}
	g.Reset(s, now)
	return true
}
