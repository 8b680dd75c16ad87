package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-backend/internal/model"
)

func TestGovernor_Allow(t *testing.T) {
	g := Governor{Cap: 25, Window: 5 * time.Minute}

	assert.True(t, g.Allow(0, 0))
	assert.True(t, g.Allow(20, 4))
	assert.False(t, g.Allow(20, 5))
	assert.False(t, g.Allow(25, 0))
	assert.False(t, g.Allow(0, 25))
}

func TestGovernor_Roll(t *testing.T) {
	g := Governor{Cap: 25, Window: 5 * time.Minute}
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := model.NewCampaignState("c1", "a1", start)
	s.RequestsSentToday = 25

	assert.False(t, g.Roll(s, start.Add(4*time.Minute)))
	assert.Equal(t, 25, s.RequestsSentToday)

	assert.True(t, g.Roll(s, start.Add(5*time.Minute)))
	assert.Equal(t, 0, s.RequestsSentToday)
	assert.Equal(t, start.Add(5*time.Minute), s.LastResetDate)
}
