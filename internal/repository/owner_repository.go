package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// OwnerRepositoryInterface defines methods used by the notifier
type OwnerRepositoryInterface interface {
	GetByCampaign(ctx context.Context, campaignID string) (*model.Owner, error)
}

type OwnerRepository struct {
	DB *sql.DB
}

// GetByCampaign finds the owner of a campaign of either type.
func (r *OwnerRepository) GetByCampaign(ctx context.Context, campaignID string) (*model.Owner, error) {
	query := `
        SELECT o.id, o.full_name, o.email
        FROM owners o
        JOIN (
            SELECT owner_id FROM connection_campaigns WHERE id = $1
            UNION ALL
            SELECT owner_id FROM comment_campaigns WHERE id = $1
        ) c ON c.owner_id = o.id
        LIMIT 1
    `
	var o model.Owner
	if err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&o.ID, &o.FullName, &o.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("find owner of campaign %s: %w", campaignID, err)
	}
	return &o, nil
}

var _ OwnerRepositoryInterface = (*OwnerRepository)(nil)
