package queue

import (
	"encoding/json"
	"fmt"

	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// DecodeEvent accepts an event published in-process or a JSON body read
// from the broker.
func DecodeEvent(payload any) (model.CampaignEvent, error) {
	switch p := payload.(type) {
	case model.CampaignEvent:
		return p, nil
	case *model.CampaignEvent:
		return *p, nil
	case []byte:
		var evt model.CampaignEvent
		if err := json.Unmarshal(p, &evt); err != nil {
			return model.CampaignEvent{}, fmt.Errorf("decode campaign event: %w", err)
		}
		return evt, nil
	default:
		return model.CampaignEvent{}, fmt.Errorf("unexpected campaign event payload %T", payload)
	}
}

// StartCampaignEventLogger records every lifecycle event in the service log.
func StartCampaignEventLogger(q Queue, topic string, log logger.Logger) error {
	return q.Subscribe(topic, func(payload any) error {
		evt, err := DecodeEvent(payload)
		if err != nil {
			log.Warn("dropping malformed campaign event", logger.Error(err))
			return nil
		}
		log.Info("campaign event",
			logger.String("event", evt.Type),
			logger.String("campaign_id", evt.CampaignID),
			logger.Int("requests_sent_today", evt.RequestsSentToday),
			logger.Int("processed", evt.Processed))
		return nil
	})
}
