package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Streaming transcription.
	StreamingURL    string
	StreamingSecret string

	// Pipeline stage endpoints and keys.
	SessionEndpoint   string
	TranslateEndpoint string
	TranslateKey      string
	OpenAIKey         string
	OpenAIModel       string
	DeepgramKey       string
	DeepgramModel     string

	// Audio storage.
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	// Session defaults.
	SourceLanguage string
	TargetLanguage string

	// Voice gate tuning.
	VADThreshold       float64
	MinSpeechFrames    int
	MaxSilencePadFrame int
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	streamingURL := os.Getenv("STREAMING_URL")
	if streamingURL == "" {
		log.Println("Warning: STREAMING_URL not set - transcription will not work")
	}
	streamingSecret := os.Getenv("STREAMING_SECRET")
	if streamingSecret == "" {
		log.Println("Warning: STREAMING_SECRET not set - signed session URLs cannot be minted")
	}

	translateEndpoint := os.Getenv("TRANSLATE_ENDPOINT")
	if translateEndpoint == "" {
		log.Println("Warning: TRANSLATE_ENDPOINT not set - translation will not work")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - enhancement disabled, basic translations only")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - speech synthesis disabled")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - audio clips will not be stored")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:        addr,
		StreamingURL:       streamingURL,
		StreamingSecret:    streamingSecret,
		SessionEndpoint:    os.Getenv("SESSION_ENDPOINT"),
		TranslateEndpoint:  translateEndpoint,
		TranslateKey:       os.Getenv("TRANSLATE_API_KEY"),
		OpenAIKey:          openAIKey,
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DeepgramKey:        deepgramKey,
		DeepgramModel:      getEnv("DEEPGRAM_MODEL", "aura-2-celeste-es"),
		SupabaseURL:        supabaseURL,
		SupabaseKey:        supabaseKey,
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "utterance-audio"),
		SourceLanguage:     getEnv("SOURCE_LANGUAGE", "en"),
		TargetLanguage:     getEnv("TARGET_LANGUAGE", "es"),
		VADThreshold:       getEnvFloat("VAD_THRESHOLD", 0.005),
		MinSpeechFrames:    getEnvInt("VAD_MIN_SPEECH_FRAMES", 3),
		MaxSilencePadFrame: getEnvInt("VAD_MAX_SILENCE_PAD_FRAMES", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %g", key, v, fallback)
		return fallback
	}
	return f
}
