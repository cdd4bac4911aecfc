package embedding

import (
	"net/http"
	"os"
	"time"

	"github.com/ehrlich-b/kgraph/internal/kgerrors"
)

// NewFromProvider constructs a Provider by name, the factory half of the
// EmbedderKind sum type: "auto" (default) tries ollama first, falls back
// to openai, falls back to the deterministic stub; "ollama" and "openai"
// select explicitly; "stub" is for tests and offline development.
func NewFromProvider(provider, model, baseURL string) (Provider, error) {
	switch provider {
	case "auto", "":
		if ollamaReachable(baseURL) {
			return NewOllama(model, baseURL), nil
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return NewOpenAI(key), nil
		}
		return NewStub(512), nil
	case "ollama":
		return NewOllama(model, baseURL), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, kgerrors.Wrap(kgerrors.Config, "OPENAI_API_KEY not set")
		}
		return NewOpenAI(key), nil
	case "stub":
		return NewStub(512), nil
	default:
		return nil, kgerrors.Wrap(kgerrors.Unsupported, "embedding provider %q (available: auto, ollama, openai, stub)", provider)
	}
}

func ollamaReachable(baseURL string) bool {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
