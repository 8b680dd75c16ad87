// Package action calls the external social-network action service.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/config"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts JSON to the action service. Any non-2xx response is an error.
type Client struct {
	http    Doer
	baseURL string
}

func NewClient(cfg config.ActionsConfig) *Client {
	return NewClientWithDoer(&http.Client{Timeout: cfg.Timeout}, cfg.BaseURL)
}

func NewClientWithDoer(d Doer, baseURL string) *Client {
	return &Client{http: d, baseURL: strings.TrimRight(baseURL, "/")}
}

type commentRequest struct {
	AccountID string `json:"account_id"`
	PostID    string `json:"post_id"`
	Text      string `json:"text"`
}

type connectionRequest struct {
	AccountID  string `json:"account_id"`
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

type dmRequest struct {
	AccountID  string `json:"account_id"`
	Identifier string `json:"identifier"`
	Text       string `json:"text"`
}

func (c *Client) PostComment(ctx context.Context, accountID, postID, text string) error {
	return c.post(ctx, "/comment", commentRequest{AccountID: accountID, PostID: postID, Text: text})
}

func (c *Client) SendConnectionRequest(ctx context.Context, accountID, identifier, message string) error {
	return c.post(ctx, "/send-connection-request", connectionRequest{AccountID: accountID, Identifier: identifier, Message: message})
}

func (c *Client) SendDM(ctx context.Context, accountID, identifier, text string) error {
	return c.post(ctx, "/dm", dmRequest{AccountID: accountID, Identifier: identifier, Text: text})
}

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s after %s: %w", endpoint, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
