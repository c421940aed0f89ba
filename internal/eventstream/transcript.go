package eventstream

import (
	"encoding/json"
	"fmt"
)

// transcriptEnvelope mirrors the JSON body of a TranscriptEvent.
type transcriptEnvelope struct {
	Transcript struct {
		Results []transcriptResult `json:"Results"`
	} `json:"Transcript"`
}

type transcriptResult struct {
	IsPartial    bool `json:"IsPartial"`
	Alternatives []struct {
		Transcript string `json:"Transcript"`
	} `json:"Alternatives"`
}

// TranscriptResult is one decoded recognition result. Partial results
// supersede the previous partial; final results are appended to the
// transcript log.
type TranscriptResult struct {
	Text      string
	IsPartial bool
}

// ParseTranscript decodes a TranscriptEvent payload. Results without
// alternatives are skipped; the first alternative's text wins.
func ParseTranscript(payload []byte) ([]TranscriptResult, error) {
	var env transcriptEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("transcript payload: %w", err)
	}
	var out []TranscriptResult
	for _, r := range env.Transcript.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		out = append(out, TranscriptResult{
			Text:      r.Alternatives[0].Transcript,
			IsPartial: r.IsPartial,
		})
	}
	return out, nil
}
