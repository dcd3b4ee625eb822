// Package api talks to the REST endpoints of the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("call token expired")
)

// StatusError is any non-2xx answer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Body)
}

// StaticCredentials is a bearer token fixed at startup.
type StaticCredentials string

func (s StaticCredentials) Token(context.Context) (string, error) {
	if s == "" {
		return "", core.ErrNoCredentials
	}
	return string(s), nil
}

type Client struct {
	baseURL  *url.URL
	http     *http.Client
	creds    core.CredentialSource
	validate *validator.Validate
	now      func() time.Time
}

func NewClient(baseURL string, creds core.CredentialSource, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: timeout},
		creds:    creds,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.baseURL.Path + "/" + strings.Join(escaped, "/")
	u.RawPath = ""
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// History fetches the backlog of conversation id, oldest first.
func (c *Client) History(ctx context.Context, id domain.ConversationID) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, c.endpoint("api", "conversations", string(id), "messages"), nil, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	log.Debug().Str("module", "api").Str("conversation", string(id)).Int("count", len(msgs)).Msg("history")
	return msgs, nil
}

func (c *Client) MarkRead(ctx context.Context, id domain.ConversationID) error {
	return c.do(ctx, http.MethodPost, c.endpoint("api", "conversations", string(id), "read"), nil, nil)
}

type tokenRequest struct {
	Room domain.RoomKey `json:"room"`
}

type tokenResponse struct {
	AppID         string        `json:"app_id" validate:"required"`
	AccessToken   string        `json:"access_token" validate:"required"`
	RoomID        domain.RoomID `json:"room_id" validate:"required"`
	UserID        domain.UserID `json:"user_id" validate:"required"`
	ServerAddress string        `json:"server_address" validate:"required,url"`
}

// CallToken exchanges an application room key for engine credentials.
func (c *Client) CallToken(ctx context.Context, room domain.RoomKey) (domain.CallCredentials, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "calls", "token"), tokenRequest{Room: room}, &resp); err != nil {
		return domain.CallCredentials{}, err
	}
	if err := c.validate.Struct(&resp); err != nil {
		return domain.CallCredentials{}, fmt.Errorf("invalid token response: %w", err)
	}

	creds := domain.CallCredentials{
		AppID:         resp.AppID,
		AccessToken:   resp.AccessToken,
		RoomID:        resp.RoomID,
		UserID:        resp.UserID,
		ServerAddress: resp.ServerAddress,
	}
	exp, err := tokenExpiry(resp.AccessToken)
	if err != nil {
		log.Debug().Err(err).Str("module", "api").Msg("access token expiry unknown")
	} else if !exp.IsZero() {
		if !exp.After(c.now()) {
			return domain.CallCredentials{}, ErrTokenExpired
		}
		creds.ExpiresAt = exp
	}
	log.Info().Str("module", "api").Str("room", string(room)).Str("room_id", string(creds.RoomID)).Msg("call token")
	return creds, nil
}

// tokenExpiry reads the exp claim without verifying the signature. Tokens
// that are not JWTs are opaque and yield an error.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
