// Package http exposes the backend routes the browser client calls: session
// setup, the pipeline stages, and WebRTC signaling.
package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/netfoor/nao-translation-webapp/internal/ingest"
	"github.com/netfoor/nao-translation-webapp/internal/pipeline"
	"github.com/netfoor/nao-translation-webapp/internal/setup"
)

type Handlers struct {
	Signer       *setup.Signer
	StreamingURL string

	Translator  pipeline.Translator
	Enhancer    pipeline.Enhancer
	Synthesizer pipeline.Synthesizer
	Ingress     *ingest.Ingress
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/api/session", h.createSession)
	e.POST("/api/translate", h.translate)
	e.POST("/api/enhance", h.enhance)
	e.POST("/api/synthesize", h.synthesize)
	e.POST("/api/call", h.call)
}

// createSession mints a signed streaming URL for one recording session.
func (h Handlers) createSession(c echo.Context) error {
	var req setup.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SampleRate <= 0 {
		req.SampleRate = 16000
	}
	language := req.SourceLanguage
	if language == "" {
		language = "en-US"
	}

	sessionID := uuid.NewString()
	signed, err := h.Signer.SignedURL(h.StreamingURL, sessionID, language, req.SampleRate)
	if err != nil {
		c.Echo().Logger.Errorf("session setup: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusOK, setup.Response{
		SessionID: sessionID,
		SignedURL: signed,
		ExpiresIn: int(setup.DefaultTTL / time.Second),
	})
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

func (h Handlers) translate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}
	out, err := h.Translator.Translate(c.Request().Context(), req.Text, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		c.Echo().Logger.Errorf("translate: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "translation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"translatedText": out})
}

type enhanceRequest struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	OriginalText   string `json:"originalText"`
}

// enhance never fails the request: when the model is unavailable the response
// carries an empty enhancement and the client keeps its draft translation.
func (h Handlers) enhance(c echo.Context) error {
	var req enhanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.TranslatedText == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "translatedText is required"})
	}
	if h.Enhancer == nil {
		return c.JSON(http.StatusOK, echo.Map{"enhancedText": ""})
	}
	out, err := h.Enhancer.Enhance(c.Request().Context(), req.OriginalText, req.TranslatedText, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		c.Echo().Logger.Warnf("enhance unavailable: %v", err)
		return c.JSON(http.StatusOK, echo.Map{"enhancedText": ""})
	}
	return c.JSON(http.StatusOK, echo.Map{"enhancedText": out})
}

type synthesizeRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

func (h Handlers) synthesize(c echo.Context) error {
	var req synthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}
	if h.Synthesizer == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "synthesis not configured"})
	}
	url, err := h.Synthesizer.Synthesize(c.Request().Context(), req.Text, req.LanguageCode)
	if err != nil {
		c.Echo().Logger.Errorf("synthesize: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "synthesis failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"audioUrl": url})
}

// call accepts a WebRTC offer and answers it, starting a server-side
// translation session fed by the browser's microphone track.
func (h Handlers) call(c echo.Context) error {
	if h.Ingress == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audio ingress not configured"})
	}
	var offer ingest.SessionDescription
	if err := c.Bind(&offer); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offer"})
	}
	answer, err := h.Ingress.HandleOffer(c.Request().Context(), offer)
	if err != nil {
		c.Echo().Logger.Errorf("webrtc offer: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not answer offer"})
	}
	return c.JSON(http.StatusOK, answer)
}
