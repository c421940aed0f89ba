package synthesize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPSynthesizer posts text to a speech endpoint that answers with raw
// little-endian 16-bit PCM, then wraps and uploads the clip.
type HTTPSynthesizer struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	SampleRate int

	uploader Uploader
}

type synthesisRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
	SampleRate   int    `json:"sampleRate"`
}

func NewHTTPSynthesizer(endpoint, apiKey string, uploader Uploader) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   endpoint,
		APIKey:     apiKey,
		SampleRate: 24000,
		uploader:   uploader,
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, language string) (string, error) {
	if s.Endpoint == "" {
		return "", fmt.Errorf("synthesis endpoint not configured")
	}
	body, _ := json.Marshal(synthesisRequest{Text: text, LanguageCode: language, SampleRate: s.SampleRate})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("synthesize: status=%d", resp.StatusCode)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("synthesize: read body: %w", err)
	}

	wav, err := EncodeWAV(pcm, s.SampleRate)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("utterances/%s/%s.wav", language, uuid.NewString())
	if err := s.uploader.Upload(key, "audio/wav", wav); err != nil {
		return "", err
	}
	return s.uploader.PublicURL(key), nil
}
