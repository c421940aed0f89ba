package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to the backend enhance route. Non-2xx and malformed
// responses mean "no enhancement available"; callers keep the draft.
type HTTPClient struct {
	HTTPClient *http.Client
	Endpoint   string
}

type httpRequest struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	OriginalText   string `json:"originalText"`
}

type httpResponse struct {
	EnhancedText string `json:"enhancedText"`
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Endpoint:   endpoint,
	}
}

func (c *HTTPClient) Enhance(ctx context.Context, original, translated, sourceLang, targetLang string) (string, error) {
	if c.Endpoint == "" {
		return "", fmt.Errorf("enhance endpoint not configured")
	}
	body, _ := json.Marshal(httpRequest{
		TranslatedText: translated,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		OriginalText:   original,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("enhance: status=%d", resp.StatusCode)
	}
	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	if strings.TrimSpace(out.EnhancedText) == "" {
		return "", fmt.Errorf("enhance: no enhancement produced")
	}
	return out.EnhancedText, nil
}
