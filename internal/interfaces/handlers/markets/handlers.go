package markets

import (
	"errors"

	catalogsvc "giftmarket/internal/application/catalog"
	listsvc "giftmarket/internal/application/listings"
	"giftmarket/internal/domain"
	"giftmarket/internal/middleware"
	"giftmarket/internal/pkg/response"
	"giftmarket/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *listsvc.Service
}

// Create POST /api/v1/markets — post a single listing for the session user.
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}

	var draft validation.ListingDraft
	if err := c.BodyParser(&draft); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.Create(c.Context(), actor.UserID, draft)
	if err != nil {
		return h.mapError(c, err)
	}
	return response.SuccessCreated(c, "Listing posted", listing, nil)
}

// List GET /api/v1/markets — search listings with filters.
func (h *Handlers) List(c *fiber.Ctx) error {
	opts := listsvc.SearchOpts{
		Type:   domain.ListingType(c.Query("type")),
		Status: domain.ListingStatus(c.Query("status")),
		Sort:   c.Query("sort"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}
	if s := c.Query("item_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid item_id", fiber.StatusBadRequest, nil)
		}
		opts.ItemID = id
	}
	if s := c.Query("user_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid user_id", fiber.StatusBadRequest, nil)
		}
		opts.UserID = id
	}

	rows, meta, err := h.Service.Search(c.Context(), opts)
	if err != nil {
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "OK", rows, meta)
}

// Get GET /api/v1/markets/:id — fetch one of the session user's listings.
func (h *Handlers) Get(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.Get(c.Context(), actor.UserID, id)
	if err != nil {
		return h.mapError(c, err)
	}
	return response.Success(c, "OK", listing, nil)
}

// UpdateStatus PATCH /api/v1/markets/:id — request a state-machine transition.
func (h *Handlers) UpdateStatus(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	var in listsvc.UpdateStatusInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.UpdateStatus(c.Context(), actor.UserID, id, in)
	if err != nil {
		return h.mapError(c, err)
	}
	return response.Success(c, "Listing updated", listing, nil)
}

// Events GET /api/v1/markets/:id/events — audit trail of one listing.
func (h *Handlers) Events(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}

	events, err := h.Service.Events(c.Context(), actor.UserID, id)
	if err != nil {
		return h.mapError(c, err)
	}
	return response.Success(c, "OK", events, nil)
}

// Summary GET /api/v1/markets/summary — per-status counts for the session user.
func (h *Handlers) Summary(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	sum, err := h.Service.Summary(c.Context(), actor.UserID)
	if err != nil {
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "OK", sum, nil)
}

// mapError converts service errors to HTTP responses. Error messages pass
// through verbatim; clients depend on the cross-price message literals.
func (h *Handlers) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrListingNotFound), errors.Is(err, listsvc.ErrNotOwner):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, catalogsvc.ErrItemNotFound):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTransitionNotesBlank),
		errors.Is(err, listsvc.ErrMissingPartnerID):
		return response.Error(c, err.Error(), fiber.StatusUnprocessableEntity, nil)
	default:
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
}
