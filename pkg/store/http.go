package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nanohr/nanofit/pkg/tracker"
	"github.com/nanohr/nanofit/pkg/workout"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTP is a Store backed by a remote document endpoint. Sessions are
// posted to and listed from <baseURL>/users/<userID>/sessions as JSON.
type HTTP struct {
	baseURL string
	client  *http.Client
	log     tracker.Logger
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(client *http.Client) func(*HTTP) {
	return func(h *HTTP) {
		h.client = client
	}
}

// WithHTTPLogger sets the logger used by the store
func WithHTTPLogger(logger tracker.Logger) func(*HTTP) {
	return func(h *HTTP) {
		h.log = logger
	}
}

// NewHTTP instantiates a new remote store on the given base URL,
// executing functional options, if any
func NewHTTP(baseURL string, options ...func(*HTTP)) *HTTP {

	h := &HTTP{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		log:     &tracker.NullLogger{},
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// Save posts a session document to the remote endpoint
func (h *HTTP) Save(ctx context.Context, userID string, session workout.Session) error {

	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.sessionsURL(userID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post session %s: %w", session.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d posting session %s", resp.StatusCode, session.ID)
	}

	return nil
}

// List fetches all session documents of a user. Records that fail to
// decode are skipped (and logged), not fatal: one corrupt document must
// not hide the rest of the history.
func (h *HTTP) List(ctx context.Context, userID string) ([]workout.Session, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.sessionsURL(userID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d listing sessions", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode session list: %w", err)
	}

	sessions := make([]workout.Session, 0, len(raw))
	for i, msg := range raw {
		var sess workout.Session
		if err := json.Unmarshal(msg, &sess); err != nil {
			h.log.Warnf("skipping malformed session record %d: %s", i, err)
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

func (h *HTTP) sessionsURL(userID string) string {
	return h.baseURL + "/users/" + userID + "/sessions"
}
