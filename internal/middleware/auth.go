package middleware

import (
	"giftmarket/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with the
// standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", user)
		return c.Next()
	}
}

// Actor is the authenticated identity seen by handlers.
type Actor struct {
	UserID  uuid.UUID
	SteamID string
	Name    string
}

// GetActor extracts the session user from Locals. Returns nil when the
// session carries no valid user.
func GetActor(c *fiber.Ctx) *Actor {
	m, ok := c.Locals(userLocal).(map[string]interface{})
	if !ok {
		return nil
	}
	raw, _ := m["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	steamID, _ := m["steam_id"].(string)
	name, _ := m["name"].(string)
	return &Actor{UserID: id, SteamID: steamID, Name: name}
}
