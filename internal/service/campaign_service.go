package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
}

// SaveCampaignRequest creates a Commenting campaign when posts are given and
// a Connection campaign otherwise.
type SaveCampaignRequest struct {
	OwnerID           string       `json:"user_id"`
	Name              string       `json:"name"`
	Users             []model.User `json:"users"`
	Posts             []model.Post `json:"posts"`
	ConnectionMessage string       `json:"connection_request_message"`
	FollowUpMessage   string       `json:"follow_up_message"`
	DMTime            int          `json:"dm_time"`
}

type SaveCampaignResult struct {
	ID   string             `json:"id"`
	Type model.CampaignType `json:"type"`
}

// CampaignDetails is a campaign of either type plus per-status counts.
type CampaignDetails struct {
	Type       model.CampaignType        `json:"type"`
	Connection *model.ConnectionCampaign `json:"connection,omitempty"`
	Comment    *model.CommentCampaign    `json:"comment,omitempty"`
	Stats      map[string]int            `json:"stats"`
}

func (s *CampaignService) SaveCampaign(ctx context.Context, req SaveCampaignRequest) (*SaveCampaignResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, appErrors.Invalid("user_id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, appErrors.Invalid("name is required")
	}

	if len(req.Posts) > 0 {
		c := &model.CommentCampaign{OwnerID: req.OwnerID, Name: req.Name, Posts: req.Posts}
		if err := s.CampaignRepo.SaveComment(ctx, c); err != nil {
			return nil, err
		}
		return &SaveCampaignResult{ID: c.ID, Type: model.CampaignTypeCommenting}, nil
	}

	if len(req.Users) == 0 {
		return nil, appErrors.Invalid("a campaign needs users or posts")
	}
	if req.DMTime < 0 {
		return nil, appErrors.Invalid("dm_time cannot be negative")
	}
	c := &model.ConnectionCampaign{
		OwnerID:           req.OwnerID,
		Name:              req.Name,
		Users:             req.Users,
		ConnectionMessage: req.ConnectionMessage,
		FollowUpMessage:   req.FollowUpMessage,
		DMTime:            req.DMTime,
	}
	if err := s.CampaignRepo.SaveConnection(ctx, c); err != nil {
		return nil, err
	}
	return &SaveCampaignResult{ID: c.ID, Type: model.CampaignTypeConnection}, nil
}

// ListCampaigns fetches an owner's campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, ownerID string, page, pageSize int) ([]model.CampaignSummary, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	all, err := s.CampaignRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}

	total := len(all)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return all[start:end], pagination, nil
}

// GetCampaign looks the id up as a Commenting campaign first, then as a
// Connection campaign.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*CampaignDetails, error) {
	comment, err := s.CampaignRepo.GetComment(ctx, id)
	if err == nil {
		stats := map[string]int{"total": len(comment.Posts)}
		for _, p := range comment.Posts {
			status := p.Status
			if model.IsScheduledStatus(status) {
				status = "scheduled"
			}
			stats[status]++
		}
		return &CampaignDetails{Type: model.CampaignTypeCommenting, Comment: comment, Stats: stats}, nil
	}
	if !appErrors.IsCampaignNotFound(err) {
		return nil, err
	}

	conn, err := s.CampaignRepo.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{"total": len(conn.Users), "sent": 0, "pending": 0}
	for _, u := range conn.Users {
		if u.Sent {
			stats["sent"]++
		} else {
			stats["pending"]++
		}
	}
	return &CampaignDetails{Type: model.CampaignTypeConnection, Connection: conn, Stats: stats}, nil
}

func (s *CampaignService) UpdatePostAction(ctx context.Context, campaignID, postID, action string) error {
	if action != model.ActionApproved && action != model.ActionPending {
		return appErrors.Invalid("action must be %q or %q", model.ActionApproved, model.ActionPending)
	}
	return s.CampaignRepo.UpdatePostAction(ctx, campaignID, postID, action)
}

func (s *CampaignService) UpdatePostComment(ctx context.Context, campaignID, postID, comment string) error {
	if strings.TrimSpace(comment) == "" {
		return appErrors.Invalid("comment cannot be empty")
	}
	return s.CampaignRepo.UpdatePostComment(ctx, campaignID, postID, comment)
}

// RenderPreview renders the connection message for one user of a campaign.
// overrideTemplate, when non-blank, replaces the stored message.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, userID string, overrideTemplate *string) (string, error) {
	c, err := s.CampaignRepo.GetConnection(ctx, campaignID)
	if err != nil {
		return "", err
	}

	template := c.ConnectionMessage
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", appErrors.Invalid("template cannot be empty")
	}

	for _, u := range c.Users {
		if u.ID == userID {
			return RenderTemplate(template, UserPlaceholders(u)), nil
		}
	}
	return "", appErrors.Invalid("user %s is not part of campaign %s", userID, campaignID)
}
