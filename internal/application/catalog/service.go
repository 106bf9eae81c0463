package catalog

import (
	"context"
	"errors"
	"time"

	"giftmarket/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrItemNotFound = errors.New("item not found")

// Service aggregates live listings into the per-item catalog index used by
// item pages and the matching-price precondition.
type Service struct {
	DB *gorm.DB
}

// Index is the aggregated market snapshot of one catalog item.
type Index struct {
	domain.Item
	Quantity   int64      `json:"quantity"`
	LowestAsk  float64    `json:"lowest_ask"`
	HighestBid float64    `json:"highest_bid"`
	BidCount   int64      `json:"bid_count"`
	RecentAsk  *time.Time `json:"recent_ask"`
}

// Get returns the catalog index for an item slug.
func (s *Service) Get(ctx context.Context, slug string) (*Index, error) {
	var item domain.Item
	if err := s.DB.WithContext(ctx).Where("slug = ?", slug).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return s.indexItem(ctx, item)
}

// IndexByItemID returns the catalog index for an item id. Serves the listings
// service's cross-price check.
func (s *Service) IndexByItemID(ctx context.Context, itemID uuid.UUID) (*Index, error) {
	var item domain.Item
	if err := s.DB.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return s.indexItem(ctx, item)
}

func (s *Service) indexItem(ctx context.Context, item domain.Item) (*Index, error) {
	idx := &Index{Item: item}
	db := s.DB.WithContext(ctx).Model(&domain.Listing{})

	type askAgg struct {
		Qty    int64
		Lowest float64
		Recent *time.Time
	}
	var asks askAgg
	err := db.Session(&gorm.Session{}).
		Select("COUNT(*) AS qty, COALESCE(MIN(price), 0) AS lowest, MAX(created_at) AS recent").
		Where("item_id = ? AND type = ? AND status = ?", item.ID, domain.ListingTypeAsk, domain.StatusLive).
		Scan(&asks).Error
	if err != nil {
		return nil, err
	}
	idx.Quantity = asks.Qty
	idx.LowestAsk = asks.Lowest
	idx.RecentAsk = asks.Recent

	type bidAgg struct {
		Qty     int64
		Highest float64
	}
	var bids bidAgg
	err = db.Session(&gorm.Session{}).
		Select("COUNT(*) AS qty, COALESCE(MAX(price), 0) AS highest").
		Where("item_id = ? AND type = ? AND status = ?", item.ID, domain.ListingTypeBid, domain.StatusLive).
		Scan(&bids).Error
	if err != nil {
		return nil, err
	}
	idx.BidCount = bids.Qty
	idx.HighestBid = bids.Highest

	return idx, nil
}

// ListOpts filters and paginates the catalog listing.
type ListOpts struct {
	Keyword string
	Sort    string
	Page    int
	Limit   int
}

// listSortColumns is the allowlist for catalog sort expressions.
var listSortColumns = map[string]string{
	"":       "name ASC",
	"name":   "name ASC",
	"recent": "created_at DESC",
}

// List returns catalog indexes for items matching the keyword.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]Index, int64, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	order, ok := listSortColumns[opts.Sort]
	if !ok {
		order = listSortColumns[""]
	}

	q := s.DB.WithContext(ctx).Model(&domain.Item{}).Where("active = ?", true)
	if opts.Keyword != "" {
		kw := "%" + opts.Keyword + "%"
		q = q.Where("name LIKE ? OR hero LIKE ? OR origin LIKE ?", kw, kw, kw)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Item
	err := q.Order(order).
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]Index, 0, len(items))
	for _, item := range items {
		idx, err := s.indexItem(ctx, item)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *idx)
	}
	return out, total, nil
}
