// Package pipeline runs the per-utterance translate, enhance and synthesize
// stages for each final transcript.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

type Enhancer interface {
	Enhance(ctx context.Context, original, translated, sourceLang, targetLang string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (string, error)
}

// Outcome is what one utterance produced. AudioURL is empty when synthesis
// failed or was skipped.
type Outcome struct {
	Translation string
	AudioURL    string
}

// Runner executes the stages for a single utterance. Translation failure
// aborts the utterance; enhancement failure falls back to the basic
// translation; synthesis failure only drops the audio clip.
type Runner struct {
	Translator  Translator
	Enhancer    Enhancer
	Synthesizer Synthesizer

	SourceLanguage string
	TargetLanguage string

	TranslateTimeout  time.Duration
	EnhanceTimeout    time.Duration
	SynthesizeTimeout time.Duration
}

func NewRunner(t Translator, e Enhancer, s Synthesizer, sourceLang, targetLang string) *Runner {
	return &Runner{
		Translator:        t,
		Enhancer:          e,
		Synthesizer:       s,
		SourceLanguage:    sourceLang,
		TargetLanguage:    targetLang,
		TranslateTimeout:  15 * time.Second,
		EnhanceTimeout:    10 * time.Second,
		SynthesizeTimeout: 15 * time.Second,
	}
}

// Run processes one final transcript end to end.
func (r *Runner) Run(ctx context.Context, text string) (Outcome, error) {
	if text == "" {
		return Outcome{}, fmt.Errorf("pipeline: empty utterance")
	}

	tctx, cancel := context.WithTimeout(ctx, r.TranslateTimeout)
	translation, err := r.Translator.Translate(tctx, text, r.SourceLanguage, r.TargetLanguage)
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: translate: %w", err)
	}

	final := translation
	if r.Enhancer != nil {
		ectx, cancel := context.WithTimeout(ctx, r.EnhanceTimeout)
		enhanced, err := r.Enhancer.Enhance(ectx, text, translation, r.SourceLanguage, r.TargetLanguage)
		cancel()
		if err != nil {
			log.Printf("pipeline: enhancement unavailable, keeping basic translation: %v", err)
		} else if enhanced != "" {
			final = enhanced
		}
	}

	out := Outcome{Translation: final}
	if r.Synthesizer != nil {
		sctx, cancel := context.WithTimeout(ctx, r.SynthesizeTimeout)
		url, err := r.Synthesizer.Synthesize(sctx, final, r.TargetLanguage)
		cancel()
		if err != nil {
			log.Printf("pipeline: synthesis failed, utterance stays text-only: %v", err)
		} else {
			out.AudioURL = url
		}
	}
	return out, nil
}
