package setup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.SourceLanguage != "en" || req.SampleRate != 16000 {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(Response{
			SessionID: "abc",
			SignedURL: "wss://stream.example/transcribe?signature=sig",
			ExpiresIn: 300,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.CreateSession(context.Background(), Request{SourceLanguage: "en", TargetLanguage: "es", SampleRate: 16000})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if got.SessionID != "abc" || got.SignedURL == "" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestCreateSession_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(403) }},
		{"missing_url", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"sessionId":"abc"}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(srv.URL)
			if _, err := c.CreateSession(context.Background(), Request{}); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestSigner_SignAndVerify(t *testing.T) {
	s := NewSigner("secret")
	signed, err := s.SignedURL("wss://stream.example/transcribe", "sess-1", "en-US", 16000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.Contains(signed, "sample-rate=16000") || !strings.Contains(signed, "signature=") {
		t.Fatalf("signed URL missing parameters: %s", signed)
	}
	if err := s.Verify(signed); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := s.Verify(signed + "0"); err == nil {
		t.Fatalf("expected tampered signature to fail")
	}
}

func TestSigner_Expiry(t *testing.T) {
	s := NewSigner("secret")
	s.TTL = time.Second
	signed, err := s.SignedURL("wss://stream.example/transcribe", "sess-1", "en-US", 16000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(10 * time.Second) }
	if err := s.Verify(signed); err == nil {
		t.Fatalf("expected expired URL to fail verification")
	}
}

func TestSigner_RequiresSecret(t *testing.T) {
	s := NewSigner("")
	if _, err := s.SignedURL("wss://stream.example", "id", "en-US", 16000); err == nil {
		t.Fatalf("expected error without secret")
	}
}
