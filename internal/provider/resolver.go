package provider

import (
	"log/slog"
	"strings"

	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/miniclaw/miniclaw/internal/provider/credentials"
)

// KnownPrefixes are the provider routing prefixes a model string may carry.
var KnownPrefixes = []string{
	"openai/", "anthropic/", "openrouter/", "gemini/",
	"zhipu/", "zai/", "groq/", "hosted_vllm/",
}

// defaultBaseURLs maps a provider ID to its OpenAI-compatible endpoint.
var defaultBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"anthropic":   "https://api.anthropic.com/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"gemini":      "https://generativelanguage.googleapis.com/v1beta/openai",
	"groq":        "https://api.groq.com/openai/v1",
	"deepseek":    "https://api.deepseek.com/v1",
	"zhipu":       "https://open.bigmodel.cn/api/paas/v4",
	"zai":         "https://api.z.ai/api/paas/v4",
	"hosted_vllm": "http://localhost:8000/v1",
}

// providerAliases maps common aliases to canonical provider IDs.
var providerAliases = map[string]string{
	"google": "gemini",
	"claude": "anthropic",
	"glm":    "zhipu",
	"vllm":   "hosted_vllm",
}

// NormalizeProviderID resolves aliases and normalizes the provider ID.
func NormalizeProviderID(id string) string {
	lower := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := providerAliases[lower]; ok {
		return canonical
	}
	return lower
}

// ParseModelString splits a "provider/model" string into provider ID and model name.
// For OpenRouter, the format is "openrouter/vendor/model" (three segments).
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// HasKnownPrefix reports whether model already names a routing provider.
func HasKnownPrefix(model string) bool {
	lower := strings.ToLower(model)
	for _, p := range KnownPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// NormalizeModel applies the routing prefix rule: with an alternate endpoint
// a model without a known provider prefix is routed as "openai/<model>".
func NormalizeModel(model, baseURL string) string {
	model = strings.TrimSpace(model)
	if baseURL == "" || HasKnownPrefix(model) {
		return model
	}
	return "openai/" + model
}

// Route is the outcome of resolving a model string against the settings.
type Route struct {
	Provider string
	Model    string
	BaseURL  string
}

// ResolveRoute decides which endpoint a model is sent to and which model
// name goes on the wire.
func ResolveRoute(model, baseURL string) Route {
	model = NormalizeModel(model, baseURL)
	provID, name := ParseModelString(model)
	provID = NormalizeProviderID(provID)

	if _, known := defaultBaseURLs[provID]; !known {
		// Bare names and vendor-qualified names go to OpenAI unchanged.
		provID, name = "openai", model
	}
	if baseURL != "" {
		return Route{Provider: provID, Model: name, BaseURL: strings.TrimSuffix(baseURL, "/")}
	}
	return Route{Provider: provID, Model: name, BaseURL: defaultBaseURLs[provID]}
}

// Resolve creates the completion client for the configured model. Every
// route needs a credential except hosted_vllm on its default local endpoint;
// the OS keyring is consulted when the configuration carries none. A missing credential is reported as
// *config.ConfigurationError.
func Resolve(cfg *config.Config) (*OpenAIProvider, error) {
	baseURL := strings.TrimSpace(cfg.Provider.BaseURL)
	route := ResolveRoute(cfg.Model.Name, baseURL)

	apiKey := strings.TrimSpace(cfg.Provider.APIKey)
	if apiKey == "" {
		if stored, err := credentials.LoadAPIKey(); err == nil {
			apiKey = stored
		} else {
			slog.Debug("No stored API key", "error", err)
		}
	}

	// Only a local vLLM reached without an alternate endpoint may run keyless.
	if apiKey == "" && (baseURL != "" || route.Provider != "hosted_vllm") {
		field := "provider.apiKey"
		msg := "an API key is required"
		if baseURL != "" {
			msg = "an API key is required when an alternate base URL is configured"
		}
		return nil, &config.ConfigurationError{Field: field, Message: msg + " (set MINICLAW_PROVIDER_API_KEY or API_KEY)"}
	}

	p := NewOpenAIProvider(apiKey, route.BaseURL, route.Model).
		WithName(route.Provider).
		WithUserAgent(cfg.Provider.UserAgent).
		WithTimeout(cfg.Provider.Timeout)

	slog.Debug("Resolved provider", "provider", route.Provider, "model", route.Model, "base", route.BaseURL)
	return p, nil
}
