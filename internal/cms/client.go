// Package cms talks to the Frappe backend that mirrors published actions.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the CMS has no record for a user.
	ErrNotFound = errors.New("cms: not found")

	// ErrUnauthorized is returned when CMS login rejects the credentials.
	ErrUnauthorized = errors.New("cms: invalid credentials")
)

// Event is the CMS mirror of an action. Skills map a skill label to its summary.
type Event struct {
	EventID     string            `json:"event_id"`
	Title       string            `json:"title"`
	Type        string            `json:"type"`
	Category    string            `json:"category"`
	SubCategory string            `json:"subcategory"`
	SubType     string            `json:"sub_type"`
	User        string            `json:"user"`
	Description string            `json:"description"`
	Skills      map[string]string `json:"skills"`
}

type Session struct {
	FullName string
	SID      string
}

type Profile struct {
	CurrentUser struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
	} `json:"current_user"`
}

// StatusError is a non-success CMS response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cms %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient targets baseURL, the CMS /api root.
func NewClient(baseURL, clientID, clientSecret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

// EventExists reports whether an Events record exists for eventID.
func (c *Client) EventExists(ctx context.Context, eventID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/resource/Events/"+url.PathEscape(eventID), nil, true)
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError("check event", resp)
	}
}

func (c *Client) CreateEvent(ctx context.Context, ev Event) error {
	return c.expectOK(ctx, "create event", http.MethodPost, "/method/solve_ninja.api.events.create_events", ev)
}

func (c *Client) UpdateEvent(ctx context.Context, ev Event) error {
	return c.expectOK(ctx, "update event", http.MethodPut, "/resource/Events/"+url.PathEscape(ev.EventID), ev)
}

// UpsertEvent updates the event when it already exists and creates it
// otherwise, so a retried request never creates a duplicate.
func (c *Client) UpsertEvent(ctx context.Context, ev Event) (created bool, err error) {
	exists, err := c.EventExists(ctx, ev.EventID)
	if err != nil {
		return false, err
	}
	if exists {
		if err := c.UpdateEvent(ctx, ev); err != nil {
			return false, err
		}
		c.logger.Info("cms event updated", "event_id", ev.EventID)
		return false, nil
	}
	if err := c.CreateEvent(ctx, ev); err != nil {
		return false, err
	}
	c.logger.Info("cms event created", "event_id", ev.EventID)
	return true, nil
}

// AddChatMessage mirrors one chat turn into the CMS chat history.
func (c *Client) AddChatMessage(ctx context.Context, eventID, userEmail, role, content, responseType string) error {
	return c.expectOK(ctx, "add chat message", http.MethodPost, "/resource/Chat%20History", map[string]string{
		"event_id":      eventID,
		"user":          userEmail,
		"role":          role,
		"content":       content,
		"response_type": responseType,
	})
}

// Login checks a student's credentials and returns the CMS session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/method/login", map[string]string{"usr": email, "pwd": password}, false)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("cms login rejected", "status", resp.StatusCode)
		return nil, ErrUnauthorized
	}

	var body struct {
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}

	s := &Session{FullName: body.FullName}
	for _, ck := range resp.Cookies() {
		if ck.Name == "sid" {
			s.SID = ck.Value
		}
	}
	return s, nil
}

func (c *Client) UserProfile(ctx context.Context, email string) (*Profile, error) {
	resp, err := c.do(ctx, http.MethodPost, "/method/solve_ninja.api.profile.get_user_profile", map[string]string{"username": email}, true)
	if err != nil {
		return nil, fmt.Errorf("user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user profile %s: %w", email, ErrNotFound)
	}

	var body struct {
		Message Profile `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &body.Message, nil
}

func (c *Client) expectOK(ctx context.Context, op, method, path string, payload any) error {
	resp, err := c.do(ctx, method, path, payload, true)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, auth bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		req.Header.Set("Authorization", "token "+c.clientID+":"+c.clientSecret)
	}
	return c.httpClient.Do(req)
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
