// Package slack is a minimal Slack Web API client covering the calls the
// provisioning pipeline needs: token validation, channel creation, posting
// and inviting. Tokens are passed per call; the panel never stores its own.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Slack Web API root.
	DefaultBaseURL = "https://slack.com/api"

	errNameTaken   = "name_taken"
	errInvalidAuth = "invalid_auth"
)

// ErrInvalidToken is returned when Slack rejects the bot token.
var ErrInvalidToken = errors.New("slack token is invalid or revoked")

// TokenInfo describes a validated bot token.
type TokenInfo struct {
	Team   string
	TeamID string
	BotID  string
}

// Channel is a created or resolved conversation. Existed is true when the
// name was already taken and the existing channel was resolved instead.
type Channel struct {
	ID      string
	Name    string
	Existed bool
}

// Client talks to the Slack Web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiResponse is the envelope every Slack Web API method shares.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ValidateToken checks the token against auth.test.
func (c *Client) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	var resp struct {
		apiResponse
		Team   string `json:"team"`
		TeamID string `json:"team_id"`
		BotID  string `json:"bot_id"`
	}
	if err := c.post(ctx, token, "auth.test", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		if resp.Error == errInvalidAuth || strings.Contains(resp.Error, "token") {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, resp.Error)
		}
		return nil, fmt.Errorf("slack auth.test failed: %s", resp.Error)
	}
	return &TokenInfo{Team: resp.Team, TeamID: resp.TeamID, BotID: resp.BotID}, nil
}

// CreateChannel creates a public channel. A name_taken error is not a
// failure: the existing channel is resolved and returned with Existed set.
func (c *Client) CreateChannel(ctx context.Context, token, name string) (*Channel, error) {
	var resp struct {
		apiResponse
		Channel struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channel"`
	}
	err := c.post(ctx, token, "conversations.create", map[string]any{"name": name}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.OK {
		return &Channel{ID: resp.Channel.ID, Name: resp.Channel.Name}, nil
	}
	if resp.Error == errNameTaken {
		slog.Info("Slack channel name taken, resolving existing channel", "name", name)
		return c.findChannel(ctx, token, name)
	}
	return nil, fmt.Errorf("create slack channel %s: %s", name, resp.Error)
}

// findChannel pages through conversations.list looking for name.
func (c *Client) findChannel(ctx context.Context, token, name string) (*Channel, error) {
	cursor := ""
	for {
		var resp struct {
			apiResponse
			Channels []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}

		params := url.Values{"limit": {"200"}, "exclude_archived": {"true"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		if err := c.get(ctx, token, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, fmt.Errorf("list slack channels: %s", resp.Error)
		}

		for _, ch := range resp.Channels {
			if ch.Name == name {
				return &Channel{ID: ch.ID, Name: ch.Name, Existed: true}, nil
			}
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return nil, fmt.Errorf("slack channel %s reported taken but not found", name)
		}
	}
}

// PostMessage posts text to a channel.
func (c *Client) PostMessage(ctx context.Context, token, channelID, text string) error {
	var resp apiResponse
	err := c.post(ctx, token, "chat.postMessage", map[string]any{
		"channel": channelID,
		"text":    text,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("post message to %s: %s", channelID, resp.Error)
	}
	return nil
}

// InviteMember invites a user to a channel. already_in_channel is treated
// as success.
func (c *Client) InviteMember(ctx context.Context, token, channelID, userID string) error {
	var resp apiResponse
	err := c.post(ctx, token, "conversations.invite", map[string]any{
		"channel": channelID,
		"users":   userID,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK && resp.Error != "already_in_channel" {
		return fmt.Errorf("invite %s to %s: %s", userID, channelID, resp.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, token, method string, body map[string]any, out any) error {
	var payload bytes.Buffer
	if body == nil {
		body = map[string]any{}
	}
	if err := json.NewEncoder(&payload).Encode(body); err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, &payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, method, out)
}

func (c *Client) get(ctx context.Context, token, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s: unexpected status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode slack %s response: %w", method, err)
	}
	return nil
}
