// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/backtrue/fbaudai/ai"
)

// Provider names for AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the full service configuration. All values come from the
// environment; defaults suit local development.
type Config struct {
	Port         string
	DatabasePath string

	AIProvider   string
	OpenAIAPIKey string
	GeminiAPIKey string

	GoogleVisionAPIKey  string
	GoogleVisionBaseURL string

	MetaAccessToken   string
	FacebookAppID     string
	FacebookAppSecret string
	GraphBaseURL      string

	AuthVerifyURL      string
	TokenEncryptionKey string
}

// LoadEnvFile loads a local .env file if present. Errors are ignored since
// production deployments configure through real environment variables.
func LoadEnvFile() {
	_ = godotenv.Load()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:         getenv("PORT", "8080"),
		DatabasePath: getenv("DATABASE_PATH", "fbaudai.db"),

		AIProvider:   strings.ToLower(getenv("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		GoogleVisionAPIKey:  os.Getenv("GOOGLE_VISION_API_KEY"),
		GoogleVisionBaseURL: os.Getenv("GOOGLE_VISION_BASE_URL"),

		MetaAccessToken:   os.Getenv("META_ACCESS_TOKEN"),
		FacebookAppID:     os.Getenv("FACEBOOK_APP_ID"),
		FacebookAppSecret: os.Getenv("FACEBOOK_APP_SECRET"),
		GraphBaseURL:      os.Getenv("GRAPH_BASE_URL"),

		AuthVerifyURL:      os.Getenv("AUTH_VERIFY_URL"),
		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
	}
}

// CheckRequired validates that the configuration is usable.
func (c *Config) CheckRequired() error {
	switch c.AIProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}

	if c.GoogleVisionAPIKey == "" {
		return fmt.Errorf("GOOGLE_VISION_API_KEY is required")
	}
	if c.TokenEncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	return nil
}

// Models assembles the per-stage model candidate lists. Env overrides lead
// and the built-in defaults close each list as the terminal fallback.
func (c *Config) Models() ai.ModelConfig {
	defaults := ai.DefaultModelConfig()
	return ai.ModelConfig{
		Vision:   ai.BuildModelList(append(splitModels("OPENAI_VISION_MODEL"), defaults.Vision...)...),
		Cluster:  ai.BuildModelList(append(splitModels("OPENAI_CLUSTER_MODEL"), defaults.Cluster...)...),
		Persona:  ai.BuildModelList(append(splitModels("OPENAI_PERSONA_MODEL"), defaults.Persona...)...),
		Creative: ai.BuildModelList(append(splitModels("OPENAI_CREATIVE_MODEL"), defaults.Creative...)...),
		Fallback: ai.BuildModelList(append(splitModels("OPENAI_FALLBACK_MODEL"), defaults.Fallback...)...),
	}
}

// splitModels reads a comma-separated model list from the environment.
func splitModels(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	models := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			models = append(models, trimmed)
		}
	}
	return models
}
