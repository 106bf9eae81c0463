package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"giftmarket/internal/application/catalog"
	"giftmarket/internal/domain"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Cache key layout. The markets prefix covers cached search pages and is
// dropped wholesale on any listing mutation.
const (
	MarketsCachePrefix = "svc_market:"
	ProfileCachePrefix = "profile_summary:"
	SearchCacheTTL     = time.Hour
)

var (
	ErrNotOwner         = errors.New("market listing not found")
	ErrLiveAsksPerItem  = errors.New("live offers limit per item reached")
	ErrMissingPartnerID = errors.New("partner steam id is required to reserve")
)

// PriceIndexer supplies the per-item lowest ask / highest bid used by the
// cross-price precondition.
type PriceIndexer interface {
	IndexByItemID(ctx context.Context, itemID uuid.UUID) (*catalog.Index, error)
}

// Service owns listing creation, status transitions, and search.
type Service struct {
	DB      *gorm.DB
	Index   PriceIndexer
	Cache   cache.Cache
	Limits  validation.Limits
	AsksCap int // live asks per user per item; 0 disables the check
}

// Create validates a draft and posts a single listing owned by userID.
// Quantity fan-out is the submitter's job; the server creates one listing per
// request.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, draft validation.ListingDraft) (*domain.Listing, error) {
	if draft.Type == "" {
		draft.Type = domain.ListingTypeAsk
	}
	if !draft.Type.Valid() {
		return nil, errors.New("invalid market type")
	}
	if draft.Quantity == 0 {
		draft.Quantity = 1
	}
	if err := validation.CheckListingDraft(draft, s.Limits); err != nil {
		return nil, err
	}

	item, err := s.findItem(ctx, draft.ItemID)
	if err != nil {
		return nil, err
	}

	switch draft.Type {
	case domain.ListingTypeAsk:
		if err := s.checkAskLimit(ctx, userID, item.ID); err != nil {
			return nil, err
		}
	case domain.ListingTypeBid:
		if err := s.retireExistingBids(ctx, userID, item.ID); err != nil {
			return nil, err
		}
	}

	if err := s.checkMatchingPrice(ctx, draft.Type, item.ID, draft.Price); err != nil {
		return nil, err
	}

	listing := &domain.Listing{
		Type:     draft.Type,
		ItemID:   item.ID,
		UserID:   userID,
		Price:    draft.Price,
		Currency: "USD",
		Notes:    strings.TrimSpace(draft.Notes),
		Status:   domain.StatusLive,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		return recordEvent(tx, listing.ID, domain.EventListingCreated, userID, map[string]interface{}{
			"type":  listing.Type,
			"price": listing.Price,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	listing.Item = item
	return listing, nil
}

// UpdateStatusInput is the PATCH /markets/:id payload.
type UpdateStatusInput struct {
	Status         domain.ListingStatus `json:"status"`
	Notes          string               `json:"notes"`
	PartnerSteamID string               `json:"partner_steam_id"`
}

// UpdateStatus applies a state-machine transition to a listing owned by
// userID. The transition table is checked before any write; notes are
// appended below the existing ones, and price/type/item stay immutable.
func (s *Service) UpdateStatus(ctx context.Context, userID, id uuid.UUID, in UpdateStatusInput) (*domain.Listing, error) {
	cur, err := s.ownedListing(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := domain.CheckTransition(cur.Status, in.Status, in.Notes); err != nil {
		return nil, err
	}
	if in.Status == domain.StatusReserved && strings.TrimSpace(in.PartnerSteamID) == "" {
		return nil, ErrMissingPartnerID
	}

	prev := cur.Status
	cur.Status = in.Status
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		cur.Notes = strings.TrimSpace(cur.Notes + "\n" + notes)
	}
	if p := strings.TrimSpace(in.PartnerSteamID); p != "" {
		cur.PartnerSteamID = p
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(cur).Error; err != nil {
			return err
		}
		return recordEvent(tx, cur.ID, domain.EventListingStatusChanged, userID, map[string]interface{}{
			"from":  prev,
			"to":    cur.Status,
			"notes": strings.TrimSpace(in.Notes),
		})
	})
	if err != nil {
		return nil, err
	}

	// A reserved ask may resolve the buyer's live bid on the same item.
	if cur.Type == domain.ListingTypeAsk && cur.Status == domain.StatusReserved {
		if err := s.completeMatchingBid(ctx, cur); err != nil {
			log.Warn().Err(err).Str("listing_id", cur.ID.String()).Msg("could not complete matching bid")
		}
	}

	s.invalidate(ctx, userID)
	return cur, nil
}

// SearchOpts filters and paginates listing search.
type SearchOpts struct {
	Type   domain.ListingType
	Status domain.ListingStatus
	ItemID uuid.UUID
	UserID uuid.UUID
	Sort   string
	Page   int
	Limit  int
}

// Meta is the search result metadata block.
type Meta struct {
	ResultCount int   `json:"result_count"`
	TotalCount  int64 `json:"total_count"`
}

// sortColumns is the allowlist for search sort expressions.
var sortColumns = map[string]string{
	"":           "created_at DESC",
	"recent":     "created_at DESC",
	"price":      "price ASC",
	"price_desc": "price DESC",
}

// searchPage is the cached representation of one search result page.
type searchPage struct {
	Rows []domain.Listing `json:"rows"`
	Meta Meta             `json:"meta"`
}

func searchCacheKey(opts SearchOpts) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s:%d:%d",
		MarketsCachePrefix, opts.Type, opts.Status, opts.ItemID, opts.UserID,
		opts.Sort, opts.Page, opts.Limit)
}

// Search returns listings matching the filters with pagination metadata.
// Result pages are cached under the markets prefix and dropped on any
// listing mutation.
func (s *Service) Search(ctx context.Context, opts SearchOpts) ([]domain.Listing, *Meta, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	order, ok := sortColumns[opts.Sort]
	if !ok {
		order = sortColumns[""]
	}

	key := searchCacheKey(opts)
	if s.Cache != nil {
		if raw, hit, err := s.Cache.Get(ctx, key); err == nil && hit {
			var page searchPage
			if json.Unmarshal([]byte(raw), &page) == nil {
				return page.Rows, &page.Meta, nil
			}
		}
	}

	q := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.ItemID != uuid.Nil {
		q = q.Where("item_id = ?", opts.ItemID)
	}
	if opts.UserID != uuid.Nil {
		q = q.Where("user_id = ?", opts.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	var rows []domain.Listing
	err := q.Preload("Item").Preload("User").
		Order(order).
		Offset((opts.Page - 1) * opts.Limit).
		Limit(opts.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}

	meta := &Meta{ResultCount: len(rows), TotalCount: total}
	if s.Cache != nil {
		if b, err := json.Marshal(searchPage{Rows: rows, Meta: *meta}); err == nil {
			if err := s.Cache.Set(ctx, key, string(b), SearchCacheTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("could not cache search page")
			}
		}
	}
	return rows, meta, nil
}

// Get returns a listing owned by userID.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Listing, error) {
	return s.ownedListing(ctx, userID, id)
}

// Events returns the audit trail of one of the user's listings, oldest first.
func (s *Service) Events(ctx context.Context, userID, id uuid.UUID) ([]domain.ListingEvent, error) {
	if _, err := s.ownedListing(ctx, userID, id); err != nil {
		return nil, err
	}
	var events []domain.ListingEvent
	err := s.DB.WithContext(ctx).
		Where("listing_id = ?", id).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Summary counts the user's listings per status for the profile block.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*domain.MarketSummary, error) {
	type row struct {
		Status domain.ListingStatus
		N      int64
	}
	var rows []row
	err := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := &domain.MarketSummary{}
	for _, r := range rows {
		switch r.Status {
		case domain.StatusLive:
			out.Live = r.N
		case domain.StatusReserved:
			out.Reserved = r.N
		case domain.StatusSold:
			out.Sold = r.N
		case domain.StatusCancelled:
			out.Cancelled = r.N
		case domain.StatusRemoved:
			out.Removed = r.N
		case domain.StatusBidCompleted:
			out.BidCompleted = r.N
		}
	}
	return out, nil
}

// findItem resolves an item reference that may be a uuid or a slug.
func (s *Service) findItem(ctx context.Context, ref string) (*domain.Item, error) {
	q := s.DB.WithContext(ctx)
	var item domain.Item
	var err error
	if id, perr := uuid.Parse(ref); perr == nil {
		err = q.Where("id = ?", id).First(&item).Error
	} else {
		err = q.Where("slug = ?", ref).First(&item).Error
	}
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, catalog.ErrItemNotFound
		}
		return nil, err
	}
	if !item.Active {
		return nil, catalog.ErrItemNotFound
	}
	return &item, nil
}

func (s *Service) checkAskLimit(ctx context.Context, userID, itemID uuid.UUID) error {
	if s.AsksCap <= 0 {
		return nil
	}
	var n int64
	err := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("user_id = ? AND item_id = ? AND type = ? AND status = ?",
			userID, itemID, domain.ListingTypeAsk, domain.StatusLive).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n >= int64(s.AsksCap) {
		return ErrLiveAsksPerItem
	}
	return nil
}

// retireExistingBids removes the user's previous live bids on the item so a
// user carries at most one live buy order per item.
func (s *Service) retireExistingBids(ctx context.Context, userID, itemID uuid.UUID) error {
	return s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("user_id = ? AND item_id = ? AND type = ? AND status = ?",
			userID, itemID, domain.ListingTypeBid, domain.StatusLive).
		Update("status", domain.StatusRemoved).Error
}

// checkMatchingPrice restricts a new listing's price against its counterpart
// side: an ask must not be priced below the highest live bid, a bid must not
// be priced above the lowest live ask.
func (s *Service) checkMatchingPrice(ctx context.Context, t domain.ListingType, itemID uuid.UUID, price float64) error {
	idx, err := s.Index.IndexByItemID(ctx, itemID)
	if err != nil {
		return err
	}
	switch t {
	case domain.ListingTypeAsk:
		if idx.BidCount != 0 && idx.HighestBid > price {
			return domain.ErrInvalidAskPrice
		}
	case domain.ListingTypeBid:
		if idx.Quantity != 0 && idx.LowestAsk < price {
			return domain.ErrInvalidBidPrice
		}
	}
	return nil
}

// completeMatchingBid finds the partner's live bid on the same item and marks
// it completed with the seller recorded.
func (s *Service) completeMatchingBid(ctx context.Context, ask *domain.Listing) error {
	var buyer domain.User
	err := s.DB.WithContext(ctx).Where("steam_id = ?", ask.PartnerSteamID).First(&buyer).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	var bid domain.Listing
	err = s.DB.WithContext(ctx).
		Where("user_id = ? AND item_id = ? AND type = ? AND status = ?",
			buyer.ID, ask.ItemID, domain.ListingTypeBid, domain.StatusLive).
		Order("created_at ASC").
		First(&bid).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	var seller domain.User
	if err := s.DB.WithContext(ctx).Where("id = ?", ask.UserID).First(&seller).Error; err != nil {
		return err
	}

	prev := bid.Status
	bid.Status = domain.StatusBidCompleted
	bid.PartnerSteamID = seller.SteamID
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&bid).Error; err != nil {
			return err
		}
		return recordEvent(tx, bid.ID, domain.EventListingStatusChanged, buyer.ID, map[string]interface{}{
			"from": prev,
			"to":   bid.Status,
		})
	})
}

func (s *Service) ownedListing(ctx context.Context, userID, id uuid.UUID) (*domain.Listing, error) {
	var cur domain.Listing
	err := s.DB.WithContext(ctx).Preload("Item").Where("id = ?", id).First(&cur).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	if cur.UserID != userID {
		// Same surface as missing: no ownership probing.
		return nil, ErrNotOwner
	}
	return &cur, nil
}

// invalidate drops cached search pages and the owner's profile summary after
// a mutation so subsequent reads are not served stale data.
func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.InvalidatePrefix(ctx, MarketsCachePrefix); err != nil {
		log.Warn().Err(err).Msg("could not invalidate market cache")
	}
	if err := s.Cache.Invalidate(ctx, ProfileCachePrefix+userID.String()); err != nil {
		log.Warn().Err(err).Msg("could not invalidate profile cache")
	}
}

func recordEvent(tx *gorm.DB, listingID uuid.UUID, eventType string, actorID uuid.UUID, data map[string]interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return tx.Create(&domain.ListingEvent{
		ListingID: listingID,
		EventType: eventType,
		ActorID:   &actorID,
		EventData: datatypes.JSON(payload),
	}).Error
}
