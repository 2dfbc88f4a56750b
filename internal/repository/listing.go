package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
)

// ListingRepository 发布信息只读访问，聊天只需要摘要
type ListingRepository struct {
	db *pgxpool.Pool
}

// NewListingRepository 创建发布信息仓库
func NewListingRepository(db *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetByID 获取发布信息及其各语言标题
func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	query := `
		SELECT l.id, l.owner_id, l.title, l.image_url, l.active,
		       COALESCE(jsonb_object_agg(t.locale, t.title) FILTER (WHERE t.locale IS NOT NULL), '{}'::jsonb)
		FROM listings l
		LEFT JOIN listing_translations t ON t.listing_id = l.id
		WHERE l.id = $1
		GROUP BY l.id
	`
	listing := &model.Listing{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&listing.ID,
		&listing.OwnerID,
		&listing.Title,
		&listing.ImageURL,
		&listing.Active,
		&listing.Titles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return listing, nil
}
