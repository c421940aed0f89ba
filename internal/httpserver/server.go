// Package httpserver assembles the backend: routes, middleware and the
// session wiring behind the WebRTC ingress.
package httpserver

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	api "github.com/netfoor/nao-translation-webapp/api/http"
	"github.com/netfoor/nao-translation-webapp/internal/audio"
	"github.com/netfoor/nao-translation-webapp/internal/config"
	"github.com/netfoor/nao-translation-webapp/internal/enhance"
	"github.com/netfoor/nao-translation-webapp/internal/ingest"
	"github.com/netfoor/nao-translation-webapp/internal/pipeline"
	"github.com/netfoor/nao-translation-webapp/internal/session"
	"github.com/netfoor/nao-translation-webapp/internal/setup"
	"github.com/netfoor/nao-translation-webapp/internal/storage"
	"github.com/netfoor/nao-translation-webapp/internal/synthesize"
	"github.com/netfoor/nao-translation-webapp/internal/transcribe"
	"github.com/netfoor/nao-translation-webapp/internal/translate"
	"github.com/netfoor/nao-translation-webapp/internal/vad"
)

// Server bundles the router and its dependencies.
type Server struct {
	Echo *echo.Echo
}

// New constructs the HTTP server with all routes wired from config. Stages
// without credentials are left nil; their routes degrade per stage rules.
func New(cfg config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	translator := translate.NewClient(cfg.TranslateEndpoint, cfg.TranslateKey)

	var enhancer pipeline.Enhancer
	if cfg.OpenAIKey != "" {
		enhancer = enhance.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel)
	}

	var synthesizer pipeline.Synthesizer
	if cfg.DeepgramKey != "" && cfg.SupabaseURL != "" {
		store, err := storage.NewSupabase(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("httpserver: audio storage disabled: %v", err)
		} else {
			synthesizer = synthesize.NewDeepgram(cfg.DeepgramKey, cfg.DeepgramModel, store)
		}
	}

	runner := pipeline.NewRunner(translator, enhancer, synthesizer, cfg.SourceLanguage, cfg.TargetLanguage)
	signer := setup.NewSigner(cfg.StreamingSecret)

	// Sessions started by the ingress mint signed URLs in-process unless a
	// dedicated session endpoint is configured.
	var creator session.SessionCreator = localCreator{signer: signer, streamingURL: cfg.StreamingURL}
	if cfg.SessionEndpoint != "" {
		creator = setup.NewClient(cfg.SessionEndpoint)
	}

	ingress := ingest.NewIngress(func(src *audio.PushSource) ingest.SessionController {
		return session.New(
			creator,
			func() session.Transcriber { return transcribe.NewStream() },
			runner,
			src,
			cfg.SourceLanguage,
			cfg.TargetLanguage,
			"",
			session.Hooks{},
		).WithGate(gateFromConfig(cfg))
	})

	h := api.Handlers{
		Signer:       signer,
		StreamingURL: cfg.StreamingURL,
		Translator:   translator,
		Enhancer:     enhancer,
		Synthesizer:  synthesizer,
		Ingress:      ingress,
	}
	h.Register(e)

	return &Server{Echo: e}
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler { return s.Echo }

// gateFromConfig builds a voice gate from the tunable env knobs, keeping the
// package defaults for anything unset.
func gateFromConfig(cfg config.Config) *vad.Gate {
	g := vad.NewGate()
	if cfg.VADThreshold > 0 {
		g.Threshold = float32(cfg.VADThreshold)
	}
	if cfg.MinSpeechFrames > 0 {
		g.MinSpeechFrames = cfg.MinSpeechFrames
	}
	if cfg.MaxSilencePadFrame > 0 {
		g.MaxSilencePadFrames = cfg.MaxSilencePadFrame
	}
	return g
}

// localCreator mints signed URLs in-process instead of calling the session
// route over HTTP. Used for server-side sessions started by the ingress.
type localCreator struct {
	signer       *setup.Signer
	streamingURL string
}

func (l localCreator) CreateSession(ctx context.Context, req setup.Request) (setup.Response, error) {
	language := req.SourceLanguage
	if language == "" {
		language = "en-US"
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = audio.TargetRate
	}
	sessionID := uuid.NewString()
	signed, err := l.signer.SignedURL(l.streamingURL, sessionID, language, rate)
	if err != nil {
		return setup.Response{}, err
	}
	return setup.Response{
		SessionID: sessionID,
		SignedURL: signed,
		ExpiresIn: int(setup.DefaultTTL.Seconds()),
	}, nil
}
