package user

import (
	"encoding/json"
	"time"

	listsvc "giftmarket/internal/application/listings"
	"giftmarket/internal/domain"
	"giftmarket/internal/middleware"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const profileCacheTTL = 5 * time.Minute

type Handlers struct {
	DB       *gorm.DB
	Listings *listsvc.Service
	Cache    cache.Cache
}

// Profile is the public user shape with per-status listing counts.
type Profile struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	SteamID   string                `json:"steam_id"`
	Avatar    string                `json:"avatar"`
	CreatedAt time.Time             `json:"created_at"`
	Summary   *domain.MarketSummary `json:"summary"`
}

// Get GET /api/v1/users/:id — public profile with market summary, cached.
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid user id", fiber.StatusBadRequest, nil)
	}
	return h.profile(c, id)
}

// Me GET /api/v1/users/me — the session user's own profile.
func (h *Handlers) Me(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	return h.profile(c, actor.UserID)
}

func (h *Handlers) profile(c *fiber.Ctx, id uuid.UUID) error {
	key := listsvc.ProfileCachePrefix + id.String()
	if cached, ok, err := h.Cache.Get(c.Context(), key); err == nil && ok {
		var p Profile
		if json.Unmarshal([]byte(cached), &p) == nil {
			return response.Success(c, "OK", p, fiber.Map{"cached": true})
		}
	}

	var u domain.User
	if err := h.DB.WithContext(c.Context()).Where("id = ?", id).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.Error(c, "User not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}

	summary, err := h.Listings.Summary(c.Context(), id)
	if err != nil {
		return response.Error(c, "Error retrieving data", fiber.StatusInternalServerError, nil)
	}

	p := Profile{
		ID:        u.ID,
		Name:      u.Name,
		SteamID:   u.SteamID,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		Summary:   summary,
	}
	if b, err := json.Marshal(p); err == nil {
		if err := h.Cache.Set(c.Context(), key, string(b), profileCacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("profile cache set failed")
		}
	}
	return response.Success(c, "OK", p, nil)
}
