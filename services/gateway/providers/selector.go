package providers

import "strings"

// Provider identities returned by PickProvider and used as registry keys.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderTogether  = "together"
	ProviderOllama    = "ollama"
)

// PickProvider maps a model name to a provider identity.
//
// Rules are evaluated in order and the first match wins:
//
//  1. prefix "claude"              -> anthropic
//  2. prefix "gpt", "o1", or "o3"  -> openai
//  3. prefix "gemini"              -> gemini
//  4. contains "/"                 -> together
//  5. anything else                -> ollama
//
// The function is total: every model string, including the empty string,
// yields an identity. It performs no I/O and no registry lookup; resolving
// the identity to a live adapter is the registry's job.
func PickProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "gemini"):
		return ProviderGemini
	case strings.Contains(m, "/"):
		return ProviderTogether
	default:
		return ProviderOllama
	}
}
