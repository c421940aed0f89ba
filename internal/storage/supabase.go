// Package storage persists synthesized utterance audio and hands back
// playback URLs.
package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Supabase stores audio clips in a Supabase storage bucket.
type Supabase struct {
	client  *supabase.Client
	baseURL string
	bucket  string
}

func NewSupabase(cfg Config) (*Supabase, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("supabase storage: URL and service role key are required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase storage: create client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "utterance-audio"
	}
	return &Supabase{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		bucket:  bucket,
	}, nil
}

func (s *Supabase) Upload(key, contentType string, data []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the public object URL for an uploaded key.
func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
