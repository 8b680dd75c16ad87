package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	SaveConnection(ctx context.Context, c *model.ConnectionCampaign) error
	SaveComment(ctx context.Context, c *model.CommentCampaign) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.CampaignSummary, error)
	GetConnection(ctx context.Context, id string) (*model.ConnectionCampaign, error)
	GetComment(ctx context.Context, id string) (*model.CommentCampaign, error)
	UpdatePostAction(ctx context.Context, campaignID, postID, action string) error
	UpdatePostComment(ctx context.Context, campaignID, postID, comment string) error

	// Engine access
	LoadDetail(ctx context.Context, campaignID string) (*model.CampaignDetail, error)
	SetToggled(ctx context.Context, t model.CampaignType, campaignID string, on bool) error
	UpdatePostStatus(ctx context.Context, campaignID, postID, status string, sendAt *time.Time) error
	MarkUserSent(ctx context.Context, campaignID, userID string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) SaveConnection(ctx context.Context, c *model.ConnectionCampaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedOn = time.Now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO connection_campaigns (id, owner_id, name, created_on, connection_message, follow_up_message, dm_time, is_toggled)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	if _, err := tx.ExecContext(ctx, query, c.ID, c.OwnerID, c.Name, c.CreatedOn,
		c.ConnectionMessage, c.FollowUpMessage, c.DMTime, c.IsToggled); err != nil {
		return fmt.Errorf("insert connection campaign: %w", err)
	}

	userQuery := `
        INSERT INTO connection_campaign_users (campaign_id, id, position, name, headline, public_identifier, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for i := range c.Users {
		u := &c.Users[i]
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, userQuery, c.ID, u.ID, i, u.Name, u.Headline, u.PublicIdentifier, u.Sent); err != nil {
			return fmt.Errorf("insert campaign user %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func (r *CampaignRepository) SaveComment(ctx context.Context, c *model.CommentCampaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedOn = time.Now().UTC()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO comment_campaigns (id, owner_id, name, created_on, is_toggled)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.ExecContext(ctx, query, c.ID, c.OwnerID, c.Name, c.CreatedOn, c.IsToggled); err != nil {
		return fmt.Errorf("insert comment campaign: %w", err)
	}

	postQuery := `
        INSERT INTO comment_campaign_posts (campaign_id, id, position, post_id, name, headline, share_url, text, comment, action, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	for i := range c.Posts {
		p := &c.Posts[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Action == "" {
			p.Action = model.ActionPending
		}
		if p.Status == "" {
			p.Status = model.PostStatusAwaitingApproval
		}
		if _, err := tx.ExecContext(ctx, postQuery, c.ID, p.ID, i, p.PostID, p.Name, p.Headline,
			p.ShareURL, p.Text, p.Comment, p.Action, p.Status); err != nil {
			return fmt.Errorf("insert campaign post %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (r *CampaignRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.CampaignSummary, error) {
	query := `
        SELECT c.id, c.name, 'Connection', c.created_on, c.is_toggled, COUNT(u.id)
        FROM connection_campaigns c
        LEFT JOIN connection_campaign_users u ON u.campaign_id = c.id
        WHERE c.owner_id = $1
        GROUP BY c.id
        UNION ALL
        SELECT c.id, c.name, 'Commenting', c.created_on, c.is_toggled, COUNT(p.id)
        FROM comment_campaigns c
        LEFT JOIN comment_campaign_posts p ON p.campaign_id = c.id
        WHERE c.owner_id = $1
        GROUP BY c.id
        ORDER BY 4 DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns of %s: %w", ownerID, err)
	}
	defer rows.Close()

	campaigns := []model.CampaignSummary{}
	for rows.Next() {
		var c model.CampaignSummary
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.CreatedOn, &c.IsToggled, &c.Targets); err != nil {
			return nil, fmt.Errorf("scan campaign summary: %w", err)
		}
		c.Type = model.CampaignType(typ)
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) GetConnection(ctx context.Context, id string) (*model.ConnectionCampaign, error) {
	query := `
        SELECT id, owner_id, name, created_on, connection_message, follow_up_message, dm_time, is_toggled
        FROM connection_campaigns WHERE id=$1
    `
	var c model.ConnectionCampaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedOn,
		&c.ConnectionMessage, &c.FollowUpMessage, &c.DMTime, &c.IsToggled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get connection campaign %s: %w", id, err)
	}

	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, name, headline, public_identifier, status
        FROM connection_campaign_users WHERE campaign_id=$1 ORDER BY position
    `, id)
	if err != nil {
		return nil, fmt.Errorf("list campaign users: %w", err)
	}
	defer rows.Close()

	c.Users = []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Headline, &u.PublicIdentifier, &u.Sent); err != nil {
			return nil, fmt.Errorf("scan campaign user: %w", err)
		}
		c.Users = append(c.Users, u)
	}
	return &c, rows.Err()
}

func (r *CampaignRepository) GetComment(ctx context.Context, id string) (*model.CommentCampaign, error) {
	query := `SELECT id, owner_id, name, created_on, is_toggled FROM comment_campaigns WHERE id=$1`
	var c model.CommentCampaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedOn, &c.IsToggled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get comment campaign %s: %w", id, err)
	}

	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, post_id, name, headline, share_url, text, comment, action, status, send_time
        FROM comment_campaign_posts WHERE campaign_id=$1 ORDER BY position
    `, id)
	if err != nil {
		return nil, fmt.Errorf("list campaign posts: %w", err)
	}
	defer rows.Close()

	c.Posts = []model.Post{}
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.PostID, &p.Name, &p.Headline, &p.ShareURL, &p.Text,
			&p.Comment, &p.Action, &p.Status, &p.SendTime); err != nil {
			return nil, fmt.Errorf("scan campaign post: %w", err)
		}
		c.Posts = append(c.Posts, p)
	}
	return &c, rows.Err()
}

func (r *CampaignRepository) UpdatePostAction(ctx context.Context, campaignID, postID, action string) error {
	query := `UPDATE comment_campaign_posts SET action=$1 WHERE campaign_id=$2 AND id=$3`
	return r.execOne(ctx, appErrors.ErrPostNotFound, query, action, campaignID, postID)
}

func (r *CampaignRepository) UpdatePostComment(ctx context.Context, campaignID, postID, comment string) error {
	query := `UPDATE comment_campaign_posts SET comment=$1 WHERE campaign_id=$2 AND id=$3`
	return r.execOne(ctx, appErrors.ErrPostNotFound, query, comment, campaignID, postID)
}

// execOne runs an update that must touch a row, returning notFound otherwise.
func (r *CampaignRepository) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ====================== Engine access ======================

// LoadDetail resolves a campaign id of either type. The account id is left
// empty; callers supply it from the request or the persisted state.
func (r *CampaignRepository) LoadDetail(ctx context.Context, campaignID string) (*model.CampaignDetail, error) {
	comment, err := r.GetComment(ctx, campaignID)
	if err == nil {
		return comment.Detail(""), nil
	}
	if !appErrors.IsCampaignNotFound(err) {
		return nil, err
	}

	conn, err := r.GetConnection(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return conn.Detail(""), nil
}

func (r *CampaignRepository) SetToggled(ctx context.Context, t model.CampaignType, campaignID string, on bool) error {
	table := "connection_campaigns"
	if t == model.CampaignTypeCommenting {
		table = "comment_campaigns"
	}
	query := `UPDATE ` + table + ` SET is_toggled=$1 WHERE id=$2`
	return r.execOne(ctx, appErrors.NewCampaignNotFound(campaignID), query, on, campaignID)
}

func (r *CampaignRepository) UpdatePostStatus(ctx context.Context, campaignID, postID, status string, sendAt *time.Time) error {
	query := `
        UPDATE comment_campaign_posts
        SET status=$1, send_time=COALESCE($2::timestamptz, send_time)
        WHERE campaign_id=$3 AND id=$4
    `
	_, err := r.DB.ExecContext(ctx, query, status, sendAt, campaignID, postID)
	if err != nil {
		return fmt.Errorf("update post %s status: %w", postID, err)
	}
	return nil
}

func (r *CampaignRepository) MarkUserSent(ctx context.Context, campaignID, userID string) error {
	query := `UPDATE connection_campaign_users SET status=TRUE WHERE campaign_id=$1 AND id=$2`
	_, err := r.DB.ExecContext(ctx, query, campaignID, userID)
	if err != nil {
		return fmt.Errorf("mark user %s sent: %w", userID, err)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
