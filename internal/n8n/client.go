// Package n8n is a client for the n8n REST API covering credential and
// workflow management. Calls are retried on server-side failures through an
// injected retry policy; client-side errors fail immediately.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fleetops/botpanel/internal/retry"
)

const (
	// CredentialTypeSSH is the n8n credential type for SSH private keys.
	CredentialTypeSSH = "sshPrivateKey"
	// CredentialTypeSlack is the n8n credential type for Slack API tokens.
	CredentialTypeSlack = "slackApi"
)

// APIError is a non-2xx response from n8n.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("n8n API error: status %d: %s", e.Status, e.Message)
}

// IsServerError reports whether err is a 5xx APIError.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// Credential is a stored n8n credential reference.
type Credential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkflowRef is a created workflow reference.
type WorkflowRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to one n8n instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
}

// DefaultPolicy retries up to 3 attempts with growing backoff, only on
// server-side (5xx) failures or non-parseable responses.
func DefaultPolicy() retry.Policy {
	return retry.NewPolicy(3, 500*time.Millisecond, func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Status >= 500
		}
		// Transport failures and undecodable bodies are worth retrying.
		return true
	})
}

func NewClient(baseURL, apiKey string, policy retry.Policy) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     policy,
	}
}

// CreateCredential stores a credential of the given n8n type.
func (c *Client) CreateCredential(ctx context.Context, name, credType string, data map[string]any) (*Credential, error) {
	payload := map[string]any{"name": name, "type": credType, "data": data}

	var cred Credential
	if err := c.call(ctx, http.MethodPost, "/api/v1/credentials", payload, &cred); err != nil {
		return nil, fmt.Errorf("create %s credential: %w", credType, err)
	}
	return &cred, nil
}

// DeleteCredential removes a credential by id.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/api/v1/credentials/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}

// CreateWorkflow creates a workflow. n8n creates workflows inactive; use
// ActivateWorkflow to turn one on.
func (c *Client) CreateWorkflow(ctx context.Context, wf *Workflow) (*WorkflowRef, error) {
	var ref WorkflowRef
	if err := c.call(ctx, http.MethodPost, "/api/v1/workflows", wf, &ref); err != nil {
		return nil, fmt.Errorf("create workflow %s: %w", wf.Name, err)
	}
	return &ref, nil
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*WorkflowRef, error) {
	var ref WorkflowRef
	if err := c.call(ctx, http.MethodGet, "/api/v1/workflows/"+id, nil, &ref); err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return &ref, nil
}

// ActivateWorkflow turns a workflow on.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodPost, "/api/v1/workflows/"+id+"/activate", nil, nil); err != nil {
		return fmt.Errorf("activate workflow %s: %w", id, err)
	}
	return nil
}

// DeactivateWorkflow turns a workflow off.
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodPost, "/api/v1/workflows/"+id+"/deactivate", nil, nil); err != nil {
		return fmt.Errorf("deactivate workflow %s: %w", id, err)
	}
	return nil
}

// DeleteWorkflow removes a workflow by id.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/api/v1/workflows/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return nil
}

// call runs one API request under the retry policy. The body is re-encoded
// per attempt so retries never reuse a consumed reader.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	return c.policy.Do(ctx, func() error {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return retry.Permanent(fmt.Errorf("encode request: %w", err))
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("X-N8N-API-KEY", c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := &APIError{Status: resp.StatusCode, Message: extractMessage(raw)}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// A 2xx with a garbage body is treated like a transient
			// upstream fault.
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	})
}

func extractMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
