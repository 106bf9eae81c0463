package catalog

import (
	"errors"

	catalogsvc "giftmarket/internal/application/catalog"
	"giftmarket/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *catalogsvc.Service
}

// List GET /api/v1/catalog — browse active items with aggregated market data.
func (h *Handlers) List(c *fiber.Ctx) error {
	opts := catalogsvc.ListOpts{
		Keyword: c.Query("q"),
		Sort:    c.Query("sort"),
		Page:    c.QueryInt("page", 1),
		Limit:   c.QueryInt("limit", 20),
	}

	rows, total, err := h.Service.List(c.Context(), opts)
	if err != nil {
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}
	meta := fiber.Map{
		"result_count": len(rows),
		"total_count":  total,
		"page":         opts.Page,
	}
	return response.Success(c, "OK", rows, meta)
}

// Get GET /api/v1/catalog/:slug — one item's market snapshot.
func (h *Handlers) Get(c *fiber.Ctx) error {
	idx, err := h.Service.Get(c.Context(), c.Params("slug"))
	if err != nil {
		if errors.Is(err, catalogsvc.ErrItemNotFound) {
			return response.Error(c, "Item not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "OK", idx, nil)
}
