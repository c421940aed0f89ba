package synthesize

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/google/uuid"
)

// Uploader persists an encoded clip and resolves its playback URL.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
	PublicURL(key string) string
}

// Deepgram synthesizes speech over the Deepgram speak websocket, wraps the
// streamed PCM in a WAV container and uploads it.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	uploader   Uploader
}

func NewDeepgram(apiKey, model string, uploader Uploader) *Deepgram {
	if model == "" {
		model = "aura-2-celeste-es"
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: 24000, uploader: uploader}
}

// Synthesize speaks text and returns the uploaded clip URL. Callers treat any
// error as "no audio for this utterance".
func (d *Deepgram) Synthesize(ctx context.Context, text, language string) (string, error) {
	pcm, err := d.speak(ctx, text)
	if err != nil {
		return "", err
	}
	wav, err := EncodeWAV(pcm, d.sampleRate)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("utterances/%s/%s.wav", language, uuid.NewString())
	if err := d.uploader.Upload(key, "audio/wav", wav); err != nil {
		return "", err
	}
	return d.uploader.PublicURL(key), nil
}

// speak collects the streamed PCM until the socket goes idle or the deadline
// passes.
func (d *Deepgram) speak(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("deepgram: empty text")
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}

	pcmCh := make(chan []byte, 4096)
	var lastRecvUnix int64
	var seenAudio int32

	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		b := make([]byte, len(data))
		copy(b, data)
		select {
		case pcmCh <- b:
		default:
		}
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}

	stopped := false
	stopClient := func() {
		if !stopped {
			stopped = true
			dg.Stop()
		}
	}
	defer stopClient()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	var pcm []byte
	drain := func() {
		for {
			select {
			case b := <-pcmCh:
				pcm = append(pcm, b...)
			default:
				return
			}
		}
	}

	idleWindow := 400 * time.Millisecond
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(12 * time.Second)
	for {
		select {
		case <-ctx.Done():
			drain()
			if len(pcm) == 0 {
				return nil, ctx.Err()
			}
			return pcm, nil
		case b := <-pcmCh:
			pcm = append(pcm, b...)
		case <-ticker.C:
			if atomic.LoadInt32(&seenAudio) == 1 {
				last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
				if time.Since(last) > idleWindow {
					drain()
					return pcm, nil
				}
			}
			if time.Now().After(deadline) {
				drain()
				if len(pcm) == 0 {
					return nil, fmt.Errorf("deepgram: no audio before deadline")
				}
				return pcm, nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
