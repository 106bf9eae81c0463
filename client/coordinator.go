package client

import (
	"context"
	"errors"
	"sync"

	listsvc "giftmarket/internal/application/listings"
	"giftmarket/internal/domain"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/validation"
)

// SubmitState is the coordinator lifecycle visible to callers.
type SubmitState string

const (
	StateIdle       SubmitState = "idle"
	StateSubmitting SubmitState = "submitting"
	StateSucceeded  SubmitState = "succeeded"
	StateFailed     SubmitState = "failed"
)

var (
	ErrSubmitInFlight   = errors.New("a submission is already in flight")
	ErrCoordinatorClose = errors.New("coordinator is closed")
)

// friendlyErrors remaps the cross-price rejections to user-facing text.
// Every other message passes through verbatim.
var friendlyErrors = map[string]string{
	"market bid should be lower than lowest ask price":   "buy order price should be lower than lowest offer price",
	"market ask should be higher than highest bid price": "offer price should be higher than highest buy order price",
}

// ListingPoster is the remote side of a submission. *Client satisfies it.
type ListingPoster interface {
	CreateListing(ctx context.Context, draft validation.ListingDraft) (*domain.Listing, error)
}

// Result is the outcome of one Submit call.
type Result struct {
	// Created holds every listing posted before the first failure.
	Created []*domain.Listing
	// LastID is the id of the last successful create, empty if none.
	LastID string
	// Err is the remapped failure that stopped the sequence, nil on full success.
	Err error
}

// Coordinator sequences a multi-unit listing submission: local validation,
// strictly sequential creates, stop at first failure keeping partial
// successes, profile cache invalidation on success. One submission may be in
// flight at a time.
type Coordinator struct {
	Poster ListingPoster
	Cache  cache.Cache
	Limits validation.Limits
	// CacheUserID keys the profile entry to invalidate after success.
	CacheUserID string

	mu     sync.Mutex
	state  SubmitState
	closed bool
}

func NewCoordinator(poster ListingPoster, store cache.Cache, limits validation.Limits, userID string) *Coordinator {
	return &Coordinator{
		Poster:      poster,
		Cache:       store,
		Limits:      limits,
		CacheUserID: userID,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (co *Coordinator) State() SubmitState {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.state
}

// Close marks the coordinator as abandoned. A submission already in flight
// keeps running but its eventual result is discarded.
func (co *Coordinator) Close() {
	co.mu.Lock()
	co.closed = true
	co.mu.Unlock()
}

// Submit validates the draft locally and posts draft.Quantity listings one at
// a time. Request k+1 is not issued until request k resolves. On the first
// remote failure the sequence stops; listings created before it stay created.
func (co *Coordinator) Submit(ctx context.Context, draft validation.ListingDraft) (*Result, error) {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil, ErrCoordinatorClose
	}
	if co.state == StateSubmitting {
		co.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	co.state = StateSubmitting
	co.mu.Unlock()

	res := co.run(ctx, draft)

	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		// Owner is gone; do not touch state it no longer observes.
		return nil, ErrCoordinatorClose
	}
	if res.Err != nil {
		co.state = StateFailed
	} else {
		co.state = StateSucceeded
	}
	return res, nil
}

func (co *Coordinator) run(ctx context.Context, draft validation.ListingDraft) *Result {
	res := &Result{}

	if err := validation.CheckListingDraft(draft, co.Limits); err != nil {
		res.Err = err
		return res
	}

	qty := draft.Quantity
	if qty < 1 {
		qty = 1
	}
	unit := draft
	unit.Quantity = 1

	for i := 0; i < qty; i++ {
		listing, err := co.Poster.CreateListing(ctx, unit)
		if err != nil {
			res.Err = remapError(err)
			return res
		}
		res.Created = append(res.Created, listing)
		res.LastID = listing.ID.String()
	}

	if co.Cache != nil && co.CacheUserID != "" {
		_ = co.Cache.Invalidate(ctx, listsvc.ProfileCachePrefix+co.CacheUserID)
	}
	return res
}

func remapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if friendly, ok := friendlyErrors[apiErr.Message]; ok {
			return &APIError{StatusCode: apiErr.StatusCode, Message: friendly}
		}
	}
	return err
}
