package auth

import (
	"errors"
	"strings"

	"giftmarket/internal/domain"
	"giftmarket/internal/pkg/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput is the register request body.
type RegisterInput struct {
	Name     string `json:"name"`
	SteamID  string `json:"steam_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionUserShape is the object stored in the session and returned by /me.
type SessionUserShape struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	SteamID string `json:"steam_id"`
	Email   string `json:"email"`
	Avatar  string `json:"avatar"`
}

// UserFinder abstracts user lookup by email+password (GORM in production,
// doubles in tests).
type UserFinder interface {
	FindByEmailAndPassword(email, password string) (*domain.User, error)
}

// GormUserFinder implements UserFinder using GORM and bcrypt.
type GormUserFinder struct{ DB *gorm.DB }

func (g *GormUserFinder) FindByEmailAndPassword(email, password string) (*domain.User, error) {
	return LoginUser(g.DB, LoginInput{Email: email, Password: password})
}

// LoginUser finds a user by email and verifies the password.
func LoginUser(db *gorm.DB, input LoginInput) (*domain.User, error) {
	if input.Email == "" || input.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	var u domain.User
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrInvalidEmail
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrIncorrectPassword
	}
	return &u, nil
}

// RegisterUser creates a marketplace account with a bcrypt password hash.
func RegisterUser(db *gorm.DB, input RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(input.Name)
	steamID := strings.TrimSpace(input.SteamID)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if name == "" {
		return nil, errors.New("name is required")
	}
	if steamID == "" {
		return nil, errors.New("steam id is required")
	}
	if !validation.IsValidEmail(email) {
		return nil, errors.New("invalid email format")
	}
	if !validation.IsValidPassword(input.Password) {
		return nil, errors.New("password must be at least 8 characters with a letter, a number, and a symbol")
	}

	var existing domain.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	}
	if err := db.Where("steam_id = ?", steamID).First(&existing).Error; err == nil {
		return nil, ErrSteamIDTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Name:         name,
		SteamID:      steamID,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := db.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// VerifyUser validates the session user blob and returns the /me shape.
func VerifyUser(sessionUser interface{}) (*SessionUserShape, error) {
	if sessionUser == nil {
		return nil, ErrNotAuthenticated
	}
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, ErrNotAuthenticated
	}
	userID, _ := m["user_id"].(string)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	return &SessionUserShape{
		UserID:  userID,
		Name:    str(m["name"]),
		SteamID: str(m["steam_id"]),
		Email:   str(m["email"]),
		Avatar:  str(m["avatar"]),
	}, nil
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
