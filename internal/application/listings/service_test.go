package listings

import (
	"context"
	"testing"

	catalogsvc "giftmarket/internal/application/catalog"
	"giftmarket/internal/domain"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/validation"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *gorm.DB, *cache.Memory) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Item{}, &domain.Listing{}, &domain.ListingEvent{},
	))
	mem := cache.NewMemory()
	svc := &Service{
		DB:      db,
		Index:   &catalogsvc.Service{DB: db},
		Cache:   mem,
		Limits:  validation.DefaultLimits(),
		AsksCap: 10,
	}
	return svc, db, mem
}

func seedUser(t *testing.T, db *gorm.DB, steamID string) *domain.User {
	u := &domain.User{
		SteamID:      steamID,
		Name:         "user-" + steamID,
		Email:        steamID + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedItem(t *testing.T, db *gorm.DB, slug string) *domain.Item {
	item := &domain.Item{
		Slug:   slug,
		Name:   "Item " + slug,
		Rarity: "mythical",
		Hero:   "Rubick",
		Active: true,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestCreate_AskHappyPath(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70001")
	item := seedItem(t, db, "dreadhawk-armor")

	got, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type:     domain.ListingTypeAsk,
		ItemID:   item.Slug,
		Price:    0.99,
		Quantity: 1,
		Notes:    "test",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, domain.StatusLive, got.Status)
	assert.Equal(t, item.ID, got.ItemID)
	assert.Equal(t, "USD", got.Currency)

	var events []domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ?", got.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventListingCreated, events[0].EventType)
}

func TestCreate_RejectsDraftViolations(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70002")
	seedItem(t, db, "golden-baby-roshan")

	_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: "golden-baby-roshan", Price: 0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price")

	// No listing row was written.
	var n int64
	db.Model(&domain.Listing{}).Count(&n)
	assert.Zero(t, n)
}

func TestCreate_InactiveItemRejected(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70003")
	item := seedItem(t, db, "retired-item")
	require.NoError(t, db.Model(item).Update("active", false).Error)

	_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: "retired-item", Price: 1,
	})
	assert.ErrorIs(t, err, catalogsvc.ErrItemNotFound)
}

func TestCreate_AskBelowHighestBidRejected(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	seller := seedUser(t, db, "70004")
	buyer := seedUser(t, db, "70005")
	item := seedItem(t, db, "exalted-bladeform")

	_, err := svc.Create(ctx, buyer.ID, validation.ListingDraft{
		Type: domain.ListingTypeBid, ItemID: item.ID.String(), Price: 5.00,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, seller.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 4.00,
	})
	require.Error(t, err)
	assert.Equal(t, "market ask should be higher than highest bid price", err.Error())

	// At or above the highest bid is fine.
	_, err = svc.Create(ctx, seller.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 5.00,
	})
	assert.NoError(t, err)
}

func TestCreate_BidAboveLowestAskRejected(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	seller := seedUser(t, db, "70006")
	buyer := seedUser(t, db, "70007")
	item := seedItem(t, db, "fractal-horns")

	_, err := svc.Create(ctx, seller.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 3.00,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, buyer.ID, validation.ListingDraft{
		Type: domain.ListingTypeBid, ItemID: item.ID.String(), Price: 3.50,
	})
	require.Error(t, err)
	assert.Equal(t, "market bid should be lower than lowest ask price", err.Error())
}

func TestCreate_BidReplacesExistingLiveBid(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	buyer := seedUser(t, db, "70008")
	item := seedItem(t, db, "blastforge-exhaler")

	first, err := svc.Create(ctx, buyer.ID, validation.ListingDraft{
		Type: domain.ListingTypeBid, ItemID: item.ID.String(), Price: 1.00,
	})
	require.NoError(t, err)

	second, err := svc.Create(ctx, buyer.ID, validation.ListingDraft{
		Type: domain.ListingTypeBid, ItemID: item.ID.String(), Price: 2.00,
	})
	require.NoError(t, err)

	var old domain.Listing
	require.NoError(t, db.First(&old, "id = ?", first.ID).Error)
	assert.Equal(t, domain.StatusRemoved, old.Status)

	var fresh domain.Listing
	require.NoError(t, db.First(&fresh, "id = ?", second.ID).Error)
	assert.Equal(t, domain.StatusLive, fresh.Status)
}

func TestCreate_AskCapPerItem(t *testing.T) {
	svc, db, _ := setupService(t)
	svc.AsksCap = 2
	ctx := context.Background()
	owner := seedUser(t, db, "70009")
	item := seedItem(t, db, "vigil-triumph")

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
			Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1.00,
		})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1.00,
	})
	assert.ErrorIs(t, err, ErrLiveAsksPerItem)
}

func TestUpdateStatus_ReserveThenSold(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70010")
	item := seedItem(t, db, "cinder-sensei")

	ask, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 9.99, Notes: "giftable",
	})
	require.NoError(t, err)

	reserved, err := svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{
		Status:         domain.StatusReserved,
		Notes:          "https://steamcommunity.com/profiles/76561198000000000",
		PartnerSteamID: "76561198000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, reserved.Status)
	assert.Equal(t, "76561198000000000", reserved.PartnerSteamID)
	// Notes append below the original ones.
	assert.Contains(t, reserved.Notes, "giftable")
	assert.Contains(t, reserved.Notes, "steamcommunity.com")

	sold, err := svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{
		Status: domain.StatusSold,
		Notes:  "https://imgur.com/a/proof",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSold, sold.Status)

	// Price and type stayed immutable through both updates.
	var final domain.Listing
	require.NoError(t, db.First(&final, "id = ?", ask.ID).Error)
	assert.Equal(t, 9.99, final.Price)
	assert.Equal(t, domain.ListingTypeAsk, final.Type)
}

func TestUpdateStatus_ReserveRequiresNotesAndPartner(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70011")
	item := seedItem(t, db, "hunter-s-hoard")

	ask, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{
		Status: domain.StatusReserved, Notes: "  ",
	})
	assert.ErrorIs(t, err, domain.ErrTransitionNotesBlank)

	_, err = svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{
		Status: domain.StatusReserved, Notes: "contact me",
	})
	assert.ErrorIs(t, err, ErrMissingPartnerID)

	// Still live; the rejected transitions left no trace.
	var cur domain.Listing
	require.NoError(t, db.First(&cur, "id = ?", ask.ID).Error)
	assert.Equal(t, domain.StatusLive, cur.Status)
}

func TestUpdateStatus_TerminalIsFinal(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70012")
	item := seedItem(t, db, "tines-of-tybara")

	ask, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{Status: domain.StatusRemoved})
	require.NoError(t, err)

	for _, to := range []domain.ListingStatus{
		domain.StatusLive, domain.StatusReserved, domain.StatusSold, domain.StatusCancelled,
	} {
		_, err = svc.UpdateStatus(ctx, owner.ID, ask.ID, UpdateStatusInput{Status: to, Notes: "n"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
}

func TestUpdateStatus_OnlyOwnerMayTransition(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "70013")
	stranger := seedUser(t, db, "70014")
	item := seedItem(t, db, "molten-bore")

	ask, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, stranger.ID, ask.ID, UpdateStatusInput{Status: domain.StatusRemoved})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateStatus_ReserveCompletesMatchingBid(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	seller := seedUser(t, db, "80001")
	buyer := seedUser(t, db, "80002")
	item := seedItem(t, db, "crown-of-hells")

	ask, err := svc.Create(ctx, seller.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 10,
	})
	require.NoError(t, err)

	bid, err := svc.Create(ctx, buyer.ID, validation.ListingDraft{
		Type: domain.ListingTypeBid, ItemID: item.ID.String(), Price: 8,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, seller.ID, ask.ID, UpdateStatusInput{
		Status:         domain.StatusReserved,
		Notes:          "trade link",
		PartnerSteamID: buyer.SteamID,
	})
	require.NoError(t, err)

	var got domain.Listing
	require.NoError(t, db.First(&got, "id = ?", bid.ID).Error)
	assert.Equal(t, domain.StatusBidCompleted, got.Status)
	assert.Equal(t, seller.SteamID, got.PartnerSteamID)
}

func TestCreate_InvalidatesCaches(t *testing.T) {
	svc, db, mem := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "80003")
	item := seedItem(t, db, "pale-mausoleum")

	require.NoError(t, mem.Set(ctx, MarketsCachePrefix+"page1", "stale", 0))
	require.NoError(t, mem.Set(ctx, ProfileCachePrefix+owner.ID.String(), "stale", 0))

	_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 0.99, Notes: "test",
	})
	require.NoError(t, err)

	_, ok, _ := mem.Get(ctx, MarketsCachePrefix+"page1")
	assert.False(t, ok)
	_, ok, _ = mem.Get(ctx, ProfileCachePrefix+owner.ID.String())
	assert.False(t, ok)
}

func TestSearchAndSummary(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "80004")
	item := seedItem(t, db, "sylvan-vedette")

	for _, price := range []float64{3, 1, 2} {
		_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
			Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: price,
		})
		require.NoError(t, err)
	}

	rows, meta, err := svc.Search(ctx, SearchOpts{
		Type:   domain.ListingTypeAsk,
		Status: domain.StatusLive,
		ItemID: item.ID,
		Sort:   "price",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), meta.TotalCount)
	assert.Equal(t, 1.0, rows[0].Price)
	assert.Equal(t, 3.0, rows[2].Price)
	require.NotNil(t, rows[0].Item)
	assert.Equal(t, "sylvan-vedette", rows[0].Item.Slug)

	_, err = svc.UpdateStatus(ctx, owner.ID, rows[0].ID, UpdateStatusInput{Status: domain.StatusRemoved})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Live)
	assert.Equal(t, int64(1), sum.Removed)
}

func TestSearch_CachesPagesUntilMutation(t *testing.T) {
	svc, db, mem := setupService(t)
	ctx := context.Background()
	owner := seedUser(t, db, "80005")
	item := seedItem(t, db, "gloomfang")

	_, err := svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 1,
	})
	require.NoError(t, err)

	opts := SearchOpts{Type: domain.ListingTypeAsk, Status: domain.StatusLive, ItemID: item.ID}
	rows, _, err := svc.Search(ctx, opts)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// page is now cached; a direct row change is invisible until invalidation
	require.NoError(t, db.Model(&domain.Listing{}).
		Where("id = ?", rows[0].ID).
		Update("status", domain.StatusRemoved).Error)

	rows, _, err = svc.Search(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "stale cached page served until a mutation invalidates it")

	_, err = svc.Create(ctx, owner.ID, validation.ListingDraft{
		Type: domain.ListingTypeAsk, ItemID: item.ID.String(), Price: 2,
	})
	require.NoError(t, err)

	rows, _, err = svc.Search(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "fresh page reflects the removed listing plus the new one")

	_, ok, _ := mem.Get(ctx, searchCacheKey(opts))
	assert.True(t, ok)
}
