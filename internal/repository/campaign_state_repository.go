package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignStateRepositoryInterface interface {
	Find(ctx context.Context, campaignID string) (*model.CampaignState, error)
	ListRunning(ctx context.Context) ([]*model.CampaignState, error)
	Create(ctx context.Context, s *model.CampaignState) error
	Save(ctx context.Context, s *model.CampaignState) error
}

type CampaignStateRepository struct {
	DB *sql.DB
}

const stateColumns = `campaign_id, account_id, is_running, requests_sent_today, last_reset_date,
        processed_users, processed_posts, pending_task_handles, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*model.CampaignState, error) {
	var s model.CampaignState
	err := row.Scan(
		&s.CampaignID, &s.AccountID, &s.IsRunning, &s.RequestsSentToday, &s.LastResetDate,
		pq.Array(&s.ProcessedUsers), pq.Array(&s.ProcessedPosts), pq.Array(&s.PendingTaskHandles),
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (r *CampaignStateRepository) Find(ctx context.Context, campaignID string) (*model.CampaignState, error) {
	query := `SELECT ` + stateColumns + ` FROM campaign_states WHERE campaign_id=$1`
	s, err := scanState(r.DB.QueryRowContext(ctx, query, campaignID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStateNotFound
		}
		return nil, fmt.Errorf("find campaign state %s: %w", campaignID, err)
	}
	return s, nil
}

func (r *CampaignStateRepository) ListRunning(ctx context.Context) ([]*model.CampaignState, error) {
	query := `SELECT ` + stateColumns + ` FROM campaign_states WHERE is_running = TRUE ORDER BY campaign_id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list running campaign states: %w", err)
	}
	defer rows.Close()

	states := []*model.CampaignState{}
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (r *CampaignStateRepository) Create(ctx context.Context, s *model.CampaignState) error {
	query := `
        INSERT INTO campaign_states (` + stateColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		s.CampaignID, s.AccountID, s.IsRunning, s.RequestsSentToday, s.LastResetDate,
		pq.Array(nonNil(s.ProcessedUsers)), pq.Array(nonNil(s.ProcessedPosts)), pq.Array(nonNil(s.PendingTaskHandles)),
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create campaign state %s: %w", s.CampaignID, err)
	}
	return nil
}

// Save upserts the mutable fields. account_id and created_at are written only
// on insert.
func (r *CampaignStateRepository) Save(ctx context.Context, s *model.CampaignState) error {
	query := `
        INSERT INTO campaign_states (` + stateColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (campaign_id) DO UPDATE SET
            is_running = EXCLUDED.is_running,
            requests_sent_today = EXCLUDED.requests_sent_today,
            last_reset_date = EXCLUDED.last_reset_date,
            processed_users = EXCLUDED.processed_users,
            processed_posts = EXCLUDED.processed_posts,
            pending_task_handles = EXCLUDED.pending_task_handles,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.DB.ExecContext(ctx, query,
		s.CampaignID, s.AccountID, s.IsRunning, s.RequestsSentToday, s.LastResetDate,
		pq.Array(nonNil(s.ProcessedUsers)), pq.Array(nonNil(s.ProcessedPosts)), pq.Array(nonNil(s.PendingTaskHandles)),
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save campaign state %s: %w", s.CampaignID, err)
	}
	return nil
}

var _ CampaignStateRepositoryInterface = (*CampaignStateRepository)(nil)
