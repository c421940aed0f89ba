// streamprobe exercises the streaming transcription path end to end from the
// command line: it pushes PCM from a file (or a generated tone) through the
// resampler and voice gate onto a signed streaming URL and prints transcript
// updates. Unlike an interactive session it reconnects with backoff, which
// makes it useful for checking endpoint health.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/netfoor/nao-translation-webapp/internal/audio"
	"github.com/netfoor/nao-translation-webapp/internal/backoff"
	"github.com/netfoor/nao-translation-webapp/internal/setup"
	"github.com/netfoor/nao-translation-webapp/internal/transcribe"
	"github.com/netfoor/nao-translation-webapp/internal/vad"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var (
		signedURL = flag.String("url", "", "signed streaming URL (skips local signing)")
		baseURL   = flag.String("base", "", "streaming base URL to sign locally")
		secret    = flag.String("secret", os.Getenv("STREAMING_SECRET"), "signing secret for -base")
		language  = flag.String("language", "en-US", "transcription language code")
		pcmPath   = flag.String("pcm", "", "raw PCM16LE file to stream (defaults to a generated tone)")
		rate      = flag.Int("rate", 48000, "sample rate of the input PCM")
		frameMS   = flag.Int("frame", 20, "frame size in milliseconds")
		gateOff   = flag.Bool("no-gate", false, "bypass the voice gate and send every frame")
	)
	flag.Parse()

	samples, err := loadSamples(*pcmPath, *rate, *frameMS)
	if err != nil {
		log.Fatalf("input: %v", err)
	}
	log.Printf("probe: %d samples at %d Hz", len(samples), *rate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	policy := backoff.Default()
	err = policy.Retry(ctx, func(ctx context.Context) error {
		url := *signedURL
		if url == "" {
			signer := setup.NewSigner(*secret)
			url, err = signer.SignedURL(*baseURL, fmt.Sprintf("probe-%d", time.Now().Unix()), *language, audio.TargetRate)
			if err != nil {
				return err
			}
		}
		return runProbe(ctx, url, samples, *rate, *frameMS, *gateOff)
	})
	if err != nil {
		log.Fatalf("probe failed: %v", err)
	}
}

// runProbe streams one pass of the samples and drains transcripts until the
// service closes the stream or the context expires.
func runProbe(ctx context.Context, signedURL string, samples []float32, rate, frameMS int, gateOff bool) error {
	stream := transcribe.NewStream()
	if err := stream.Connect(ctx, signedURL); err != nil {
		return err
	}
	defer stream.Close()

	resampler := audio.NewResampler(rate, audio.TargetRate)
	gate := vad.NewGate()
	frameSamples := rate * frameMS / 1000

	go func() {
		sent, dropped := 0, 0
		for off := 0; off+frameSamples <= len(samples); off += frameSamples {
			frame := resampler.Resample(samples[off : off+frameSamples])
			if !gateOff && !gate.Admit(frame) {
				dropped++
				continue
			}
			if err := stream.SendPCM(audio.EncodePCM16(frame)); err != nil {
				log.Printf("probe: send: %v", err)
				return
			}
			sent++
			time.Sleep(time.Duration(frameMS) * time.Millisecond)
		}
		log.Printf("probe: input exhausted, sent=%d gated=%d", sent, dropped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-stream.Errs():
			return err
		case r, ok := <-stream.Results():
			if !ok {
				log.Printf("probe: stream closed by service")
				return nil
			}
			if r.IsPartial {
				log.Printf("partial: %s", r.Text)
			} else {
				log.Printf("final:   %s", r.Text)
			}
		}
	}
}

// loadSamples reads raw PCM16LE, or synthesizes two seconds of 440 Hz tone
// loud enough to open the voice gate.
func loadSamples(path string, rate, frameMS int) ([]float32, error) {
	if path == "" {
		n := rate * 2
		out := make([]float32, n)
		step := 2 * math.Pi * 440 / float64(rate)
		phase := 0.0
		for i := range out {
			out[i] = float32(0.3 * math.Sin(phase))
			phase += step
		}
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%s: odd byte count for PCM16", path)
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return audio.FloatFromPCM16(samples), nil
}
