package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionConfig for the Redis-backed session.
type SessionConfig struct {
	Secret       string
	RedisURL     string
	IsProduction bool
}

const (
	SessionCookieName  = "giftmarket.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in the session under "user".
type SessionUser struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	SteamID string `json:"steam_id"`
	Email   string `json:"email"`
	Avatar  string `json:"avatar"`
}

// Session returns a Fiber middleware that loads the session from Redis before
// the handler runs and persists it after.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)

	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookieName)
		key := SessionRedisPrefix + sessionID

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(context.Background(), key).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		if data == nil {
			data = make(map[string]interface{})
		}

		c.Locals("session_data", data)
		if u, ok := data["user"]; ok {
			c.Locals("user", u)
		} else {
			c.Locals("user", nil)
		}
		c.Locals("session_id", sessionID)

		if err := c.Next(); err != nil {
			return err
		}

		if sid, _ := c.Locals("session_id").(string); sid != "" {
			updated, _ := c.Locals("session_data").(map[string]interface{})
			if updated != nil {
				b, _ := json.Marshal(updated)
				rdb.Set(context.Background(), SessionRedisPrefix+sid, b, sessionMaxAge)
			}
		}
		return nil
	}, rdb, nil
}

// GetSessionID returns the current session ID from context.
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}

// SetSessionUser stores the user in the session data so the middleware
// persists it after the handler returns.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"user_id":  user.UserID,
		"name":     user.Name,
		"steam_id": user.SteamID,
		"email":    user.Email,
		"avatar":   user.Avatar,
	}
	c.Locals("session_data", data)
	c.Locals("user", data["user"])
}

// ClearSessionUser drops the user from the session data (logout).
func ClearSessionUser(c *fiber.Ctx) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data != nil {
		delete(data, "user")
		c.Locals("session_data", data)
	}
	c.Locals("user", nil)
}

// RegenerateSessionID creates a new session ID, sets it in Locals, and writes
// the cookie. Call on login so the pre-auth id is never promoted.
func RegenerateSessionID(c *fiber.Ctx, cfg SessionConfig) string {
	sid := strings.ReplaceAll(uuid.New().String(), "-", "")
	c.Locals("session_id", sid)
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		HTTPOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: "Lax",
		MaxAge:   int(sessionMaxAge.Seconds()),
		Path:     "/",
	})
	return sid
}
