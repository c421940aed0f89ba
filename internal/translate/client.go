// Package translate is the HTTP client for the translation endpoint.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
}

type request struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   endpoint,
		APIKey:     apiKey,
	}
}

// Translate returns the translated text. Any non-2xx response is a stage
// failure for the calling pipeline.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if c.Endpoint == "" {
		return "", fmt.Errorf("translate endpoint not configured")
	}
	body, _ := json.Marshal(request{Text: text, SourceLanguage: sourceLang, TargetLanguage: targetLang})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("translate error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr response
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if strings.TrimSpace(tr.TranslatedText) == "" {
		return "", fmt.Errorf("translate: empty translation")
	}
	return tr.TranslatedText, nil
}
