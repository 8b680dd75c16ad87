package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config"
)

type captured struct {
	path string
	body map[string]string
}

func newServer(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got.path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Endpoints(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantPath string
		wantBody map[string]string
	}{
		{
			name:     "comment",
			call:     func(c *Client) error { return c.PostComment(context.Background(), "acc", "urn:1", "Nice") },
			wantPath: "/comment",
			wantBody: map[string]string{"account_id": "acc", "post_id": "urn:1", "text": "Nice"},
		},
		{
			name:     "connection request",
			call:     func(c *Client) error { return c.SendConnectionRequest(context.Background(), "acc", "ada", "Hi Ada") },
			wantPath: "/send-connection-request",
			wantBody: map[string]string{"account_id": "acc", "identifier": "ada", "message": "Hi Ada"},
		},
		{
			name:     "dm",
			call:     func(c *Client) error { return c.SendDM(context.Background(), "acc", "ada", "Thanks") },
			wantPath: "/dm",
			wantBody: map[string]string{"account_id": "acc", "identifier": "ada", "text": "Thanks"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got captured
			srv := newServer(t, http.StatusOK, &got)
			c := NewClient(config.ActionsConfig{BaseURL: srv.URL + "/", Timeout: time.Second})

			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.wantPath, got.path)
			assert.Equal(t, tt.wantBody, got.body)
		})
	}
}

func TestClient_Non2xxIsError(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusNotFound, &got)
	c := NewClient(config.ActionsConfig{BaseURL: srv.URL, Timeout: time.Second})

	err := c.PostComment(context.Background(), "acc", "urn:1", "Nice")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, `{"error":"boom"}`, se.Body)
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestClient_TransportError(t *testing.T) {
	c := NewClientWithDoer(failingDoer{}, "http://actions.invalid")

	err := c.SendDM(context.Background(), "acc", "ada", "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
