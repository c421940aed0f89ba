// Package session owns the recording lifecycle: microphone capture through
// the VAD gate onto the streaming connection, transcript state, and the
// fan-out of per-utterance pipelines.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/netfoor/nao-translation-webapp/internal/audio"
	"github.com/netfoor/nao-translation-webapp/internal/pipeline"
	"github.com/netfoor/nao-translation-webapp/internal/setup"
	"github.com/netfoor/nao-translation-webapp/internal/transcribe"
	"github.com/netfoor/nao-translation-webapp/internal/vad"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusRecording  Status = "recording"
	StatusStopped    Status = "stopped"
	StatusError      Status = "error"
)

// SessionCreator mints a signed streaming URL for a new session.
type SessionCreator interface {
	CreateSession(ctx context.Context, req setup.Request) (setup.Response, error)
}

// Transcriber is one single-use streaming transcription connection.
type Transcriber interface {
	Connect(ctx context.Context, signedURL string) error
	SendPCM(pcm []byte) error
	Results() <-chan transcribe.Result
	Errs() <-chan error
	Close() error
}

// PipelineRunner processes one final transcript into a translation and an
// optional audio clip.
type PipelineRunner interface {
	Run(ctx context.Context, text string) (pipeline.Outcome, error)
}

// Hooks are the UI-facing notifications. All hooks are optional and are
// invoked outside the session lock.
type Hooks struct {
	OnStatus      func(Status, string)
	OnPartial     func(text string)
	OnFinal       func(index int, text string)
	OnTranslation func(index int, text string)
	OnAudio       func(index int, url string)
}

// Snapshot is a point-in-time copy of the transcript state. The three slices
// are index-aligned: translations[i] and audioRefs[i] belong to finals[i], with
// "" meaning not yet produced (or never produced, for audio).
type Snapshot struct {
	Status       Status
	ErrMessage   string
	Partial      string
	Finals       []string
	Translations []string
	AudioRefs    []string
}

// Session drives one user-visible translation session. Start and Stop may be
// called repeatedly; each Start opens a fresh streaming connection.
type Session struct {
	setup      SessionCreator
	newStream  func() Transcriber
	runner     PipelineRunner
	source     audio.Source
	sourceLang string
	targetLang string
	userID     string

	mu           sync.Mutex
	status       Status
	errMsg       string
	partial      string
	finals       []string
	translations []string
	audioRefs    []string
	gen          int

	gate      *vad.Gate
	resampler *audio.Resampler
	stream    Transcriber

	hooks Hooks
}

func New(creator SessionCreator, newStream func() Transcriber, runner PipelineRunner, source audio.Source, sourceLang, targetLang, userID string, hooks Hooks) *Session {
	return &Session{
		setup:      creator,
		newStream:  newStream,
		runner:     runner,
		source:     source,
		sourceLang: sourceLang,
		targetLang: targetLang,
		userID:     userID,
		status:     StatusIdle,
		gate:       vad.NewGate(),
		hooks:      hooks,
	}
}

// WithGate replaces the default voice gate, for environment-tuned thresholds.
func (s *Session) WithGate(g *vad.Gate) *Session {
	if g != nil {
		s.gate = g
	}
	return s
}

// Start connects to the streaming service and begins capture. It is a no-op
// while a session is already connecting or recording.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusConnecting || s.status == StatusRecording {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(StatusConnecting, "")
	gen := s.gen
	s.mu.Unlock()

	resp, err := s.setup.CreateSession(ctx, setup.Request{
		SourceLanguage: s.sourceLang,
		TargetLanguage: s.targetLang,
		UserID:         s.userID,
		SampleRate:     audio.TargetRate,
	})
	if err != nil {
		s.fail(fmt.Errorf("session setup failed: %w", err))
		return err
	}

	stream := s.newStream()
	if err := stream.Connect(ctx, resp.SignedURL); err != nil {
		s.fail(fmt.Errorf("streaming connection failed: %w", err))
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.status != StatusConnecting {
		// Stopped or cleared while connecting; abandon this connection.
		s.mu.Unlock()
		_ = stream.Close()
		return nil
	}
	s.stream = stream
	s.gate.Reset()
	s.resampler = audio.NewResampler(s.source.SampleRate(), audio.TargetRate)
	s.mu.Unlock()

	if err := s.source.Start(s.onAudioBlock); err != nil {
		_ = stream.Close()
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.setStatusLocked(StatusRecording, "")
	s.mu.Unlock()

	go s.consume(stream)
	return nil
}

// onAudioBlock is the capture callback: resample to the service rate, gate on
// voice activity, encode and enqueue. It never blocks.
func (s *Session) onAudioBlock(block []float32) {
	s.mu.Lock()
	stream := s.stream
	resampler := s.resampler
	if stream == nil || s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	frame := resampler.Resample(block)
	admit := s.gate.Admit(frame)
	s.mu.Unlock()
	if !admit {
		return
	}
	if err := stream.SendPCM(audio.EncodePCM16(frame)); err != nil {
		log.Printf("session: dropping frame: %v", err)
	}
}

// consume drains transcript results and stream errors until the stream ends.
func (s *Session) consume(stream Transcriber) {
	results := stream.Results()
	errs := stream.Errs()
	for {
		select {
		case r, ok := <-results:
			if !ok {
				// Stream ended. A queued fatal error means the error state;
				// otherwise the service closed the stream and the session is
				// stopped, releasing capture so no frames feed a dead stream.
				select {
				case err := <-errs:
					s.fail(err)
				default:
					s.Stop()
				}
				return
			}
			if r.IsPartial {
				s.applyPartial(r.Text)
			} else {
				s.applyFinal(r.Text)
			}
		case err := <-errs:
			s.fail(err)
			return
		}
	}
}

// applyPartial overwrites the in-flight partial; partials never append.
func (s *Session) applyPartial(text string) {
	s.mu.Lock()
	s.partial = text
	hook := s.hooks.OnPartial
	s.mu.Unlock()
	if hook != nil {
		hook(text)
	}
}

// applyFinal appends the utterance, clears the partial, reserves the aligned
// translation and audio slots, and launches the utterance pipeline.
func (s *Session) applyFinal(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	s.partial = ""
	index := len(s.finals)
	s.finals = append(s.finals, text)
	s.translations = append(s.translations, "")
	s.audioRefs = append(s.audioRefs, "")
	gen := s.gen
	hook := s.hooks.OnFinal
	s.mu.Unlock()
	if hook != nil {
		hook(index, text)
	}
	if s.runner != nil {
		// Fire and forget: Stop does not cancel in-flight utterances, so the
		// pipeline runs on its own context rather than the session's.
		go s.runPipeline(context.Background(), gen, index, text)
	}
}

func (s *Session) runPipeline(ctx context.Context, gen, index int, text string) {
	out, err := s.runner.Run(ctx, text)
	if err != nil {
		log.Printf("session: utterance %d pipeline: %v", index, err)
		return
	}

	s.mu.Lock()
	if s.gen != gen || index >= len(s.translations) {
		// Transcript was cleared while this utterance was in flight.
		s.mu.Unlock()
		return
	}
	s.translations[index] = out.Translation
	s.audioRefs[index] = out.AudioURL
	onTranslation := s.hooks.OnTranslation
	onAudio := s.hooks.OnAudio
	s.mu.Unlock()

	if onTranslation != nil {
		onTranslation(index, out.Translation)
	}
	if out.AudioURL != "" && onAudio != nil {
		onAudio(index, out.AudioURL)
	}
}

// Stop tears the session down. It is idempotent and safe to call from any
// state; finals and their translations remain visible after stopping.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.status != StatusConnecting && s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.stream = nil
	s.gate.Reset()
	s.partial = ""
	s.setStatusLocked(StatusStopped, "")
	s.mu.Unlock()

	if err := s.source.Close(); err != nil {
		log.Printf("session: closing audio source: %v", err)
	}
	if stream != nil {
		_ = stream.Close()
	}
}

// Clear wipes the transcript log. In-flight pipelines for cleared utterances
// discard their results.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = ""
	s.finals = nil
	s.translations = nil
	s.audioRefs = nil
	s.gen++
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:       s.status,
		ErrMessage:   s.errMsg,
		Partial:      s.partial,
		Finals:       append([]string(nil), s.finals...),
		Translations: append([]string(nil), s.translations...),
		AudioRefs:    append([]string(nil), s.audioRefs...),
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// fail moves the session to the error state with a user-facing message and
// releases the capture and streaming resources.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.status == StatusError || s.status == StatusStopped {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.stream = nil
	s.gate.Reset()
	s.partial = ""
	s.setStatusLocked(StatusError, UserMessage(err))
	s.mu.Unlock()

	log.Printf("session: %v", err)
	_ = s.source.Close()
	if stream != nil {
		_ = stream.Close()
	}
}

// setStatusLocked updates status and fires the status hook. Caller holds mu;
// the hook runs on its own goroutine so it never sees the lock held.
func (s *Session) setStatusLocked(status Status, msg string) {
	s.status = status
	s.errMsg = msg
	if hook := s.hooks.OnStatus; hook != nil {
		go hook(status, msg)
	}
}

// UserMessage maps internal failures to the message shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone permission and try again."
	case errors.Is(err, audio.ErrDeviceNotFound):
		return "No microphone was found. Connect a microphone and try again."
	case errors.Is(err, audio.ErrDeviceUnsupported):
		return "The microphone does not support the required audio format."
	case err == nil:
		return ""
	default:
		return "The translation session hit an error. Stop and start a new session."
	}
}
