package auth

import (
	"context"
	"errors"

	listsvc "giftmarket/internal/application/listings"
	authsvc "giftmarket/internal/auth"
	"giftmarket/internal/middleware"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Handlers struct {
	DB         *gorm.DB
	SessionCfg middleware.SessionConfig
	Redis      *redis.Client
	Cache      cache.Cache
}

// Register POST /api/v1/auth/register — create a marketplace account.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var input authsvc.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	u, err := authsvc.RegisterUser(h.DB, input)
	if err != nil {
		if errors.Is(err, authsvc.ErrEmailTaken) || errors.Is(err, authsvc.ErrSteamIDTaken) {
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return response.SuccessCreated(c, "Account created", authsvc.SessionUserShape{
		UserID:  u.ID.String(),
		Name:    u.Name,
		SteamID: u.SteamID,
		Email:   u.Email,
		Avatar:  u.Avatar,
	}, nil)
}

// Login POST /api/v1/auth/login — verify credentials and start a session.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var input authsvc.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	u, err := authsvc.LoginUser(h.DB, input)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			return response.Unauthorized(c, "Invalid email or password")
		default:
			return response.Error(c, "Error logging in", fiber.StatusInternalServerError, nil)
		}
	}

	// Fresh session id on every login so a pre-auth id is never promoted.
	middleware.RegenerateSessionID(c, h.SessionCfg)
	shape := authsvc.SessionUserShape{
		UserID:  u.ID.String(),
		Name:    u.Name,
		SteamID: u.SteamID,
		Email:   u.Email,
		Avatar:  u.Avatar,
	}
	middleware.SetSessionUser(c, middleware.SessionUser(shape))

	return response.Success(c, "Logged in", shape, nil)
}

// Me GET /api/v1/auth/me — current session user.
func (h *Handlers) Me(c *fiber.Ctx) error {
	shape, err := authsvc.VerifyUser(c.Locals("user"))
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	return response.Success(c, "OK", shape, nil)
}

// Logout POST /api/v1/auth/logout — drop the session and its cached data.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)

	middleware.ClearSessionUser(c)
	if sid := middleware.GetSessionID(c); sid != "" && h.Redis != nil {
		_ = h.Redis.Del(context.Background(), middleware.SessionRedisPrefix+sid).Err()
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		HTTPOnly: true,
		MaxAge:   -1,
		Path:     "/",
	})

	if actor != nil && h.Cache != nil {
		_ = h.Cache.Invalidate(context.Background(), listsvc.ProfileCachePrefix+actor.UserID.String())
	}
	return response.Success(c, "Logged out", nil, nil)
}
