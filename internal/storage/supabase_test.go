package storage

import "testing"

func TestNewSupabase_RequiresCredentials(t *testing.T) {
	if _, err := NewSupabase(Config{}); err == nil {
		t.Fatalf("expected error without URL and key")
	}
	if _, err := NewSupabase(Config{URL: "https://proj.supabase.co"}); err == nil {
		t.Fatalf("expected error without service role key")
	}
}

func TestPublicURL(t *testing.T) {
	s, err := NewSupabase(Config{
		URL:            "https://proj.supabase.co/",
		ServiceRoleKey: "service-role",
		Bucket:         "clips",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := s.PublicURL("utterances/es/a.wav")
	want := "https://proj.supabase.co/storage/v1/object/public/clips/utterances/es/a.wav"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
