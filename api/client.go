package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agaraleas/RideSync/auth"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
)

// RideAPI is the durable request/response backend. It is the source of truth
// for ride state and works regardless of the realtime channel.
type RideAPI interface {
	UpdateRideStatus(ctx context.Context, rideID domain.ID, status domain.RideStatus) (domain.Ride, error)
	RideHistory(ctx context.Context, userID domain.ID) ([]domain.Ride, error)
	SendChatMessage(ctx context.Context, rideID domain.ID, message string) error
	ChatMessages(ctx context.Context, rideID domain.ID) ([]domain.ChatMessage, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server replied %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server replied %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenProvider
	logger  logging.AbstractLogger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.http = httpClient }
}

func WithLogger(logger logging.AbstractLogger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func CreateClient(baseURL string, timeout time.Duration, tokens auth.TokenProvider, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logging.ForComponent("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UpdateRideStatus(ctx context.Context, rideID domain.ID, status domain.RideStatus) (domain.Ride, error) {
	var ride domain.Ride
	path := "/rides/" + url.PathEscape(rideID.String()) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"status": status.String()}, &ride); err != nil {
		return domain.Ride{}, err
	}
	if err := ride.Validate(); err != nil {
		return domain.Ride{}, fmt.Errorf("decoding ride %s: %w", rideID, err)
	}
	return ride, nil
}

// RideHistory accepts either a bare array or an object with a "rides" array.
func (c *Client) RideHistory(ctx context.Context, userID domain.ID) ([]domain.Ride, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/rides/history/"+url.PathEscape(userID.String()), nil, &raw); err != nil {
		return nil, err
	}

	var rides []domain.Ride
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Rides []domain.Ride `json:"rides"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding ride history: %w", err)
		}
		rides = wrapped.Rides
	} else if err := json.Unmarshal(trimmed, &rides); err != nil {
		return nil, fmt.Errorf("decoding ride history: %w", err)
	}
	return rides, nil
}

func (c *Client) SendChatMessage(ctx context.Context, rideID domain.ID, message string) error {
	path := "/chat/" + url.PathEscape(rideID.String()) + "/messages"
	return c.do(ctx, http.MethodPost, path, map[string]string{"message": message}, nil)
}

// ChatMessages accepts either a bare array or an object with a "messages" array.
func (c *Client) ChatMessages(ctx context.Context, rideID domain.ID) ([]domain.ChatMessage, error) {
	var raw json.RawMessage
	path := "/chat/" + url.PathEscape(rideID.String()) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var messages []domain.ChatMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Messages []domain.ChatMessage `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding chat history: %w", err)
		}
		messages = wrapped.Messages
	} else if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, fmt.Errorf("decoding chat history: %w", err)
	}

	for i := range messages {
		if messages[i].RideID.IsZero() {
			messages[i].RideID = rideID
		}
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetching bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debugf("%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnf("%s %s failed: %v", method, path, err)
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.logger.Warnf("%s %s: %v", method, path, statusErr)
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
