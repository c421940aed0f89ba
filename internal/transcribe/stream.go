// Package transcribe maintains the streaming connection to the transcription
// service: PCM frames up as AudioEvent messages, transcript results down.
package transcribe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netfoor/nao-translation-webapp/internal/eventstream"
)

// Result is one transcript update. A partial supersedes the previous partial;
// a final result will not be revised again by the service.
type Result struct {
	Text      string
	IsPartial bool
}

// Stream is a single-use streaming transcription session over a signed
// websocket URL. Create a new Stream per recording session.
type Stream struct {
	results   chan Result
	errs      chan error
	audioData chan []byte
	stopCh    chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

func NewStream() *Stream {
	return &Stream{
		results:   make(chan Result, 100),
		errs:      make(chan error, 1),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
	}
}

// Connect dials the signed endpoint and starts the send/receive loops.
func (s *Stream) Connect(ctx context.Context, signedURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	if s.connected {
		return nil
	}
	if signedURL == "" {
		return fmt.Errorf("signed URL is empty")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("streaming connect failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("streaming connect failed: %w", err)
	}
	s.conn = conn
	s.connected = true

	go s.readLoop()
	go s.writeLoop()
	return nil
}

// SendPCM queues one admitted frame of PCM16LE audio. It never blocks: the
// caller is the audio callback, so a full queue drops the frame.
func (s *Stream) SendPCM(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.closed {
		return fmt.Errorf("stream not connected")
	}
	select {
	case s.audioData <- pcm:
		return nil
	default:
		log.Println("transcribe: audio queue full, dropping frame")
		return nil
	}
}

// Results delivers transcript updates in service order. The channel closes
// when the stream ends for any reason.
func (s *Stream) Results() <-chan Result { return s.results }

// Errs delivers at most one fatal stream error (service exception or
// transport failure). A clean close delivers nothing.
func (s *Stream) Errs() <-chan error { return s.errs }

// Close is idempotent: safe to call repeatedly and before Connect.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopCh)
	if s.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	return nil
}

func (s *Stream) fatal(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Stream) readLoop() {
	defer close(s.results)
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				// explicit Close already ran
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Println("transcribe: stream closed by service")
			} else if websocket.IsUnexpectedCloseError(err) {
				// abnormal closure without a prior stop is still a stop, not
				// an automatic retry, but worth a distinct log line
				log.Printf("transcribe: abnormal closure: %v", err)
			} else {
				s.fatal(fmt.Errorf("streaming read: %w", err))
			}
			return
		}
		if !s.handleMessage(data) {
			return
		}
	}
}

// handleMessage decodes one inbound frame. It returns false when the stream
// must terminate (service exception).
func (s *Stream) handleMessage(data []byte) bool {
	msg, err := eventstream.Unmarshal(data)
	if err != nil {
		// malformed frames are non-fatal; skip and keep streaming
		log.Printf("transcribe: skipping undecodable frame (%d bytes): %v", len(data), err)
		return true
	}
	switch msg.Kind() {
	case eventstream.KindTranscript:
		results, err := eventstream.ParseTranscript(msg.Payload)
		if err != nil {
			log.Printf("transcribe: bad transcript payload: %v", err)
			return true
		}
		for _, r := range results {
			select {
			case <-s.stopCh:
				return false
			case s.results <- Result{Text: r.Text, IsPartial: r.IsPartial}:
			}
		}
	case eventstream.KindException:
		s.fatal(msg.ExceptionError())
		return false
	default:
		log.Printf("transcribe: ignoring event %q", msg.Header(eventstream.HeaderEventType))
	}
	return true
}

func (s *Stream) writeLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audioData:
			frame, err := eventstream.NewAudioEvent(pcm).Marshal()
			if err != nil {
				log.Printf("transcribe: frame encode: %v", err)
				continue
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				select {
				case <-s.stopCh:
				default:
					log.Printf("transcribe: audio send: %v", err)
				}
				return
			}
		}
	}
}
