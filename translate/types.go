// Package translate implements the translation orchestration engine for
// Minecraft mod language batches: batch and outcome types, the provider
// capability every backend implements, the error taxonomy, batch
// validation, provider resolution, and the orchestrator that chains
// methods with cache lookup and fallback escalation.
package translate

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

const (
	// MethodLocal is the deterministic passthrough (or external CLI) method.
	MethodLocal = "local"
	// MethodAI is the LLM-backed method; the concrete provider is resolved
	// from the batch's provider hint.
	MethodAI = "ai"
)

// DefaultMethods is the method order used when a batch names none.
var DefaultMethods = []string{MethodLocal, MethodAI}

// ---------------------------------------------------------------------------
// Batch / outcome
// ---------------------------------------------------------------------------

// Batch is a unit of translation work: an ordered set of unique keys, each
// with its source text.
type Batch struct {
	SourceLang string            `json:"sourceLang"`
	TargetLang string            `json:"targetLang"`
	Keys       []string          `json:"keys"`
	Texts      map[string]string `json:"texts"`
	// Methods is the ordered list of methods to try (empty = DefaultMethods).
	Methods []string `json:"methods,omitempty"`
	// ProviderHint selects the AI provider ("hosted", "ollama").
	ProviderHint string `json:"provider,omitempty"`
	// Fallback permits escalating keys the local method missed to the AI method.
	Fallback bool `json:"fallback,omitempty"`
	// Context is optional mod context used to enrich prompts (mod name, description).
	Context string `json:"context,omitempty"`
}

// Subset returns a copy of b restricted to keys, preserving the given order.
func (b Batch) Subset(keys []string) Batch {
	sub := b
	sub.Keys = append([]string(nil), keys...)
	sub.Texts = make(map[string]string, len(keys))
	for _, k := range keys {
		sub.Texts[k] = b.Texts[k]
	}
	return sub
}

// Failure records why one key of a batch was not translated.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Metadata describes how an outcome was produced.
type Metadata struct {
	RequestID      string         `json:"requestId,omitempty"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model,omitempty"`
	Elapsed        time.Duration  `json:"elapsed"`
	SuccessCount   int            `json:"successCount"`
	FailureCount   int            `json:"failureCount"`
	FallbackUsed   bool           `json:"fallbackUsed"`
	CacheHits      int            `json:"cacheHits"`
	CacheMisses    int            `json:"cacheMisses"`
	ProviderCounts map[string]int `json:"providerCounts,omitempty"`
}

// Outcome is the possibly partial result of translating a batch.
type Outcome struct {
	Translations map[string]string `json:"translations"`
	Failures     []Failure         `json:"failures,omitempty"`
	Metadata     Metadata          `json:"metadata"`
}

// NewOutcome returns an empty outcome attributed to provider/model.
func NewOutcome(provider, model string) *Outcome {
	return &Outcome{
		Translations: make(map[string]string),
		Metadata:     Metadata{Provider: provider, Model: model},
	}
}

// Succeed records a translated key.
func (o *Outcome) Succeed(key, value string) {
	o.Translations[key] = value
	o.Metadata.SuccessCount = len(o.Translations)
}

// Fail records a per-key failure.
func (o *Outcome) Fail(key, reason string) {
	o.Failures = append(o.Failures, Failure{Key: key, Reason: reason})
	o.Metadata.FailureCount = len(o.Failures)
}

// Missing returns the keys of b that o has no translation for, in batch order.
func (o *Outcome) Missing(b Batch) []string {
	var missing []string
	for _, k := range b.Keys {
		if _, ok := o.Translations[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// ---------------------------------------------------------------------------
// Provider capability
// ---------------------------------------------------------------------------

// Provider is implemented by every translation backend. Translate returns a
// possibly partial outcome; it returns an error only when no key at all
// could be translated.
type Provider interface {
	Name() string
	Model() string
	Translate(ctx context.Context, batch Batch) (*Outcome, error)
}

// HealthChecker is implemented by providers that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
