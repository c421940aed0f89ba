// Package setup talks to the session-setup endpoint that mints signed
// streaming URLs, and implements the signing itself for the backend side.
package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes the session the client wants to open.
type Request struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	UserID         string `json:"userId"`
	SampleRate     int    `json:"sampleRate"`
}

// Response carries the signed streaming URL. The URL expires after ExpiresIn
// seconds and must be re-requested for every session.
type Response struct {
	SessionID string `json:"sessionId"`
	SignedURL string `json:"signedUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

type Client struct {
	HTTPClient *http.Client
	Endpoint   string
}

func NewClient(endpoint string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Endpoint:   endpoint,
	}
}

// CreateSession requests a fresh signed streaming URL.
func (c *Client) CreateSession(ctx context.Context, req Request) (Response, error) {
	if c.Endpoint == "" {
		return Response{}, fmt.Errorf("session endpoint not configured")
	}
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("session setup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("session setup: status=%d body=%s", resp.StatusCode, string(b))
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("session setup: %w", err)
	}
	if out.SignedURL == "" {
		return Response{}, fmt.Errorf("session setup: response missing signed URL")
	}
	return out, nil
}
