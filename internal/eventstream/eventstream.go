// Package eventstream implements the binary event-stream framing used to talk
// to the streaming transcription service: a 12-byte prelude (total length,
// headers length, prelude CRC32), typed key/value headers, a binary payload
// and a trailing CRC32 over the whole message.
package eventstream

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// PreludeSize is [TotalLen:4][HeadersLen:4][PreludeCRC:4].
	PreludeSize = 12
	// MinMessageSize is an empty-header, empty-payload message.
	MinMessageSize = PreludeSize + 4

	headerTypeString = 7
)

// Well-known header names and values.
const (
	HeaderMessageType   = ":message-type"
	HeaderEventType     = ":event-type"
	HeaderContentType   = ":content-type"
	HeaderExceptionType = ":exception-type"

	MessageTypeEvent     = "event"
	MessageTypeException = "exception"

	EventTypeTranscript = "TranscriptEvent"
	EventTypeAudio      = "AudioEvent"
)

// Header is a typed key/value pair. Only string values (type 7) are used by
// this service.
type Header struct {
	Name  string
	Value string
}

func (h Header) String() string { return fmt.Sprintf("%s=%q", h.Name, h.Value) }

// Message is one framed event in either direction.
type Message struct {
	Headers []Header
	Payload []byte
}

// Header returns the value of the named header, or "" when absent.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// NewAudioEvent frames PCM16LE audio bytes as an outbound AudioEvent.
func NewAudioEvent(pcm []byte) *Message {
	return &Message{
		Headers: []Header{
			{Name: HeaderMessageType, Value: MessageTypeEvent},
			{Name: HeaderEventType, Value: EventTypeAudio},
			{Name: HeaderContentType, Value: "application/octet-stream"},
		},
		Payload: pcm,
	}
}

// Marshal encodes the message into its wire form.
func (m *Message) Marshal() ([]byte, error) {
	headersLen := 0
	for _, h := range m.Headers {
		if len(h.Name) > 255 {
			return nil, fmt.Errorf("header name too long: %d bytes", len(h.Name))
		}
		if len(h.Value) > 0xffff {
			return nil, fmt.Errorf("header value too long: %d bytes", len(h.Value))
		}
		headersLen += 1 + len(h.Name) + 1 + 2 + len(h.Value)
	}
	total := PreludeSize + headersLen + len(m.Payload) + 4
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], uint32(headersLen))
	binary.BigEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(buf[0:8]))

	off := PreludeSize
	for _, h := range m.Headers {
		buf[off] = byte(len(h.Name))
		off++
		off += copy(buf[off:], h.Name)
		buf[off] = headerTypeString
		off++
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(h.Value)))
		off += 2
		off += copy(buf[off:], h.Value)
	}
	off += copy(buf[off:], m.Payload)

	binary.BigEndian.PutUint32(buf[off:off+4], crc32.ChecksumIEEE(buf[:off]))
	return buf, nil
}

// Unmarshal decodes a wire message, validating lengths and both checksums.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) < MinMessageSize {
		return nil, fmt.Errorf("message too short: %d bytes, need at least %d", len(data), MinMessageSize)
	}
	total := binary.BigEndian.Uint32(data[0:4])
	headersLen := binary.BigEndian.Uint32(data[4:8])
	if int(total) != len(data) {
		return nil, fmt.Errorf("length mismatch: prelude says %d bytes, got %d", total, len(data))
	}
	if want, got := binary.BigEndian.Uint32(data[8:12]), crc32.ChecksumIEEE(data[0:8]); want != got {
		return nil, fmt.Errorf("prelude checksum mismatch: 0x%08x != 0x%08x", got, want)
	}
	if int(headersLen) > len(data)-MinMessageSize {
		return nil, fmt.Errorf("headers length %d exceeds message body", headersLen)
	}
	if want, got := binary.BigEndian.Uint32(data[len(data)-4:]), crc32.ChecksumIEEE(data[:len(data)-4]); want != got {
		return nil, fmt.Errorf("message checksum mismatch: 0x%08x != 0x%08x", got, want)
	}

	msg := &Message{}
	off := PreludeSize
	end := PreludeSize + int(headersLen)
	for off < end {
		nameLen := int(data[off])
		off++
		if off+nameLen+3 > end {
			return nil, fmt.Errorf("truncated header at offset %d", off)
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		if t := data[off]; t != headerTypeString {
			return nil, fmt.Errorf("unsupported header value type 0x%02x for %q", t, name)
		}
		off++
		valueLen := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+valueLen > end {
			return nil, fmt.Errorf("truncated header value for %q", name)
		}
		msg.Headers = append(msg.Headers, Header{Name: name, Value: string(data[off : off+valueLen])})
		off += valueLen
	}
	if payload := data[end : len(data)-4]; len(payload) > 0 {
		msg.Payload = make([]byte, len(payload))
		copy(msg.Payload, payload)
	}
	return msg, nil
}

// Kind classifies a decoded inbound message.
type Kind int

const (
	// KindOther covers event types this client does not consume; they are
	// logged and skipped without failing the stream.
	KindOther Kind = iota
	KindTranscript
	KindException
)

func (m *Message) Kind() Kind {
	switch m.Header(HeaderMessageType) {
	case MessageTypeException:
		return KindException
	case MessageTypeEvent:
		if m.Header(HeaderEventType) == EventTypeTranscript {
			return KindTranscript
		}
	}
	return KindOther
}

// ExceptionError turns an exception message into an error carrying the code
// header and payload detail.
func (m *Message) ExceptionError() error {
	code := m.Header(HeaderExceptionType)
	if code == "" {
		code = "UnknownException"
	}
	return fmt.Errorf("service exception %s: %s", code, string(m.Payload))
}
