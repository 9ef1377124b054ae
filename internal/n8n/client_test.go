package n8n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetops/botpanel/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	p := DefaultPolicy()
	p.Backoff = func(int) time.Duration { return time.Millisecond }
	return p
}

func TestCreateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/credentials", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-N8N-API-KEY"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, CredentialTypeSlack, body["type"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cred-1", "name": body["name"]})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", fastPolicy())
	cred, err := client.CreateCredential(context.Background(), "bl-slack", CredentialTypeSlack, map[string]any{"accessToken": "xoxb-valid"})
	require.NoError(t, err)
	assert.Equal(t, "cred-1", cred.ID)
}

func TestCallRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "wf-1", "name": "bl"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", fastPolicy())
	ref, err := client.GetWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", ref.ID)
	assert.Equal(t, 3, attempts)
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "unauthorized"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key", fastPolicy())
	err := client.DeleteWorkflow(context.Background(), "wf-1")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", fastPolicy())
	err := client.ActivateWorkflow(context.Background(), "wf-1")
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, IsServerError(err))
}

func TestCallRetriesUnparseableResponse(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			_, _ = w.Write([]byte("<html>not json</html>"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "wf-9", "name": "bl"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", fastPolicy())
	ref, err := client.GetWorkflow(context.Background(), "wf-9")
	require.NoError(t, err)
	assert.Equal(t, "wf-9", ref.ID)
	assert.Equal(t, 2, attempts)
}

func TestDeleteCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/credentials/cred-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", fastPolicy())
	assert.NoError(t, client.DeleteCredential(context.Background(), "cred-1"))
}
