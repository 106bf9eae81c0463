// Package client is the headless SDK for the giftmarket API. It wraps the
// HTTP JSON surface and hosts the submission coordinator used by form-like
// callers posting one or more listings.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	catalogsvc "giftmarket/internal/application/catalog"
	listsvc "giftmarket/internal/application/listings"
	"giftmarket/internal/domain"
	"giftmarket/internal/pkg/validation"
)

// APIError is a non-2xx response decoded from the standard error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Client calls the giftmarket HTTP API. Calls take a context and are never
// retried; every failure surfaces to the caller as a terminal error for that
// attempt.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// SessionCookie is the raw Cookie header value from a successful login.
	SessionCookie string
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

type successEnvelope struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
}

type errorEnvelope struct {
	Status string `json:"status"`
	Error  struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.SessionCookie != "" {
		req.Header.Set("Cookie", c.SessionCookie)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error.Message}
	}

	if out == nil {
		return nil
	}
	var env successEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// SessionUser is the authenticated identity returned by login and /me.
type SessionUser struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	SteamID string `json:"steam_id"`
	Email   string `json:"email"`
	Avatar  string `json:"avatar"`
}

// Login authenticates and captures the session cookie for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*SessionUser, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]string{"email": email, "password": password}); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/auth/login", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Message == "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: env.Error.Message}
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == "giftmarket.sid" {
			c.SessionCookie = ck.Name + "=" + ck.Value
		}
	}

	var env successEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	var u SessionUser
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateListing posts one listing.
func (c *Client) CreateListing(ctx context.Context, draft validation.ListingDraft) (*domain.Listing, error) {
	var out domain.Listing
	if err := c.do(ctx, http.MethodPost, "/api/v1/markets", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateListingStatus patches a listing's status.
func (c *Client) UpdateListingStatus(ctx context.Context, id string, in listsvc.UpdateStatusInput) (*domain.Listing, error) {
	var out domain.Listing
	if err := c.do(ctx, http.MethodPatch, "/api/v1/markets/"+id, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchOpts filters a markets search.
type SearchOpts struct {
	Type   string
	Status string
	ItemID string
	UserID string
	Sort   string
	Page   int
	Limit  int
}

// Listings searches the market.
func (c *Client) Listings(ctx context.Context, opts SearchOpts) ([]domain.Listing, error) {
	q := url.Values{}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.ItemID != "" {
		q.Set("item_id", opts.ItemID)
	}
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/markets"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []domain.Listing
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CatalogItem fetches one item's market snapshot by slug.
func (c *Client) CatalogItem(ctx context.Context, slug string) (*catalogsvc.Index, error) {
	var out catalogsvc.Index
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches a public user profile with the market summary.
func (c *Client) Profile(ctx context.Context, userID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logout ends the session and forgets the cookie.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SessionCookie = ""
	return nil
}
