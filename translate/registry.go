package translate

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultAIProvider is used when neither the batch nor the configuration
// names an AI provider.
const DefaultAIProvider = "ollama"

// Registry stores the AI providers and resolves a batch's provider hint.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry returns an empty registry with the given default provider name.
func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultAIProvider
	}

	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: normalizedDefault,
	}
}

// Register adds one provider under its Name().
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Provider resolves a provider by name. Empty names use the default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil || len(r.providers) == 0 {
		return nil, Errorf(KindServiceUnavailable, "", "no AI providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	if provider, ok := r.providers[resolvedName]; ok {
		return provider, nil
	}

	return nil, Errorf(KindValidation, "", "AI provider %q is not registered (available: %s)",
		resolvedName, strings.Join(r.ProviderNames(), ", "))
}

// DefaultProvider returns the name used for empty hints.
func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

// ProviderNames returns the registered names, sorted.
func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
