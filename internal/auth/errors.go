package auth

import "errors"

var (
	ErrEmailPasswordRequired = errors.New("email and password are required")
	ErrInvalidEmail          = errors.New("invalid email")
	ErrIncorrectPassword     = errors.New("incorrect password")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrEmailTaken            = errors.New("email already registered")
	ErrSteamIDTaken          = errors.New("steam id already registered")
)
