package translate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minios-linux/modtranslate/cache"
	"github.com/minios-linux/modtranslate/metrics"
)

// ProviderCache is reported as the provider of outcomes served entirely
// from the result cache.
const ProviderCache = "cache"

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	// Local serves MethodLocal.
	Local Provider
	// AI resolves MethodAI through the batch's provider hint.
	AI *Registry
	// Cache is shared by every request; nil creates one with the default size.
	Cache *cache.ResultCache
	// Validator checks batches before any lookup; nil uses Validator{}.
	Validator BatchValidator
	Breaker   BreakerSettings
	Logger    zerolog.Logger
}

// Orchestrator is the entry point for translating batches: it answers from
// the cache where possible, runs the requested methods in order on the
// misses, escalates missing local keys to the AI method when permitted,
// and caches what it obtains.
type Orchestrator struct {
	local     Provider
	ai        *Registry
	cache     *cache.ResultCache
	validator BatchValidator
	breakers  *breakers
	logger    zerolog.Logger
}

// NewOrchestrator returns an orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	c := opts.Cache
	if c == nil {
		c = cache.New(cache.DefaultMaxSize)
	}
	v := opts.Validator
	if v == nil {
		v = Validator{}
	}
	return &Orchestrator{
		local:     opts.Local,
		ai:        opts.AI,
		cache:     c,
		validator: v,
		breakers:  newBreakers(opts.Breaker, opts.Logger),
		logger:    opts.Logger,
	}
}

// CacheStats reports the result cache occupancy.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// ---------------------------------------------------------------------------
// Translate
// ---------------------------------------------------------------------------

// Translate translates batch. The returned outcome holds only requested
// keys; keys no method could translate are listed as failures. An error is
// returned when the batch is invalid or when no key at all was translated,
// in which case the outcome (if non-nil) still lists the failures.
func (o *Orchestrator) Translate(ctx context.Context, batch Batch) (*Outcome, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := o.logger.With().Str("request_id", requestID).Str("from", batch.SourceLang).Str("to", batch.TargetLang).Logger()

	if err := o.validator.Validate(batch); err != nil {
		log.Warn().Err(err).Msg("batch rejected")
		return nil, err
	}

	result := NewOutcome("", "")
	result.Metadata.RequestID = requestID
	result.Metadata.ProviderCounts = make(map[string]int)

	var misses []string
	for _, k := range batch.Keys {
		if v, ok := o.cache.Get(batch.SourceLang, batch.TargetLang, k); ok {
			result.Translations[k] = v
			continue
		}
		misses = append(misses, k)
	}
	result.Metadata.CacheHits = len(batch.Keys) - len(misses)
	result.Metadata.CacheMisses = len(misses)

	if len(misses) == 0 {
		result.Metadata.Provider = ProviderCache
		o.finish(result, start)
		log.Debug().Int("keys", len(batch.Keys)).Msg("batch served from cache")
		return result, nil
	}

	pending := batch.Subset(misses)
	wanted := make(map[string]struct{}, len(misses))
	for _, k := range misses {
		wanted[k] = struct{}{}
	}

	obtained := make(map[string]string)
	reasons := make(map[string]string)
	merge := func(out *Outcome, provider string) int {
		if out == nil {
			return 0
		}
		n := 0
		for k, v := range out.Translations {
			if _, ok := wanted[k]; !ok {
				continue
			}
			if _, dup := obtained[k]; dup {
				continue
			}
			obtained[k] = v
			result.Metadata.ProviderCounts[provider]++
			n++
		}
		for _, f := range out.Failures {
			reasons[f.Key] = f.Reason
		}
		return n
	}

	methods := batch.Methods
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	var lastErr error
	for _, method := range methods {
		out, provider, err := o.runMethod(ctx, method, pending)
		if err != nil && KindOf(err) == KindValidation {
			log.Warn().Err(err).Str("method", method).Msg("method rejected batch")
			return nil, err
		}
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("method", method).Msg("method failed")
		}
		got := merge(out, provider.name)
		if got > 0 {
			result.Metadata.Provider = provider.name
			result.Metadata.Model = provider.model
		}

		if method == MethodLocal && batch.Fallback && len(obtained) < len(misses) {
			missing := missingKeys(pending.Keys, obtained)
			log.Info().Int("missing", len(missing)).Msg("escalating missing keys to AI method")
			metrics.Fallbacks.Inc()
			result.Metadata.FallbackUsed = true

			fbOut, fbProvider, fbErr := o.runMethod(ctx, MethodAI, pending.Subset(missing))
			if fbErr != nil && KindOf(fbErr) == KindValidation {
				log.Warn().Err(fbErr).Msg("fallback rejected batch")
				return nil, fbErr
			}
			if fbErr != nil {
				lastErr = fbErr
				log.Warn().Err(fbErr).Msg("fallback failed")
			}
			if n := merge(fbOut, fbProvider.name); n > 0 && got == 0 {
				result.Metadata.Provider = fbProvider.name
				result.Metadata.Model = fbProvider.model
			}
		}

		if len(obtained) > 0 {
			break
		}
	}

	for k, v := range obtained {
		result.Translations[k] = v
		o.cache.Set(batch.SourceLang, batch.TargetLang, k, v)
	}
	for _, k := range pending.Keys {
		if _, ok := obtained[k]; ok {
			continue
		}
		reason := reasons[k]
		if reason == "" && lastErr != nil {
			reason = lastErr.Error()
		}
		if reason == "" {
			reason = "no method translated the key"
		}
		result.Fail(k, reason)
	}
	o.finish(result, start)

	log.Info().
		Str("provider", result.Metadata.Provider).
		Int("translated", len(obtained)).
		Int("failed", len(result.Failures)).
		Int("cache_hits", result.Metadata.CacheHits).
		Bool("fallback", result.Metadata.FallbackUsed).
		Dur("elapsed", result.Metadata.Elapsed).
		Msg("batch processed")

	if len(result.Translations) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no method produced a translation")
		}
		return result, NewError(KindTranslationFailed, "", "all methods failed", lastErr)
	}
	return result, nil
}

func (o *Orchestrator) finish(result *Outcome, start time.Time) {
	result.Metadata.SuccessCount = len(result.Translations)
	result.Metadata.FailureCount = len(result.Failures)
	result.Metadata.Elapsed = time.Since(start)
}

type providerRef struct {
	name  string
	model string
}

// runMethod resolves method to a provider and calls it through its breaker.
func (o *Orchestrator) runMethod(ctx context.Context, method string, batch Batch) (*Outcome, providerRef, error) {
	provider, err := o.resolve(method, batch.ProviderHint)
	if err != nil {
		return nil, providerRef{name: method}, err
	}
	ref := providerRef{name: provider.Name(), model: provider.Model()}
	out, err := o.breakers.call(ref.name, func() (*Outcome, error) {
		return provider.Translate(ctx, batch)
	})
	return out, ref, err
}

func (o *Orchestrator) resolve(method, hint string) (Provider, error) {
	switch method {
	case MethodLocal:
		if o.local == nil {
			return nil, Errorf(KindServiceUnavailable, MethodLocal, "local method is not configured")
		}
		return o.local, nil
	case MethodAI:
		return o.ai.Provider(hint)
	default:
		return nil, Errorf(KindValidation, "", "unknown method %q", method)
	}
}

func missingKeys(keys []string, obtained map[string]string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := obtained[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// CheckHealth probes every configured provider independently and reports
// per-provider readiness. It fails with ServiceUnavailable only when no
// provider is healthy.
func (o *Orchestrator) CheckHealth(ctx context.Context) (map[string]bool, error) {
	providers := make(map[string]Provider)
	if o.local != nil {
		providers[o.local.Name()] = o.local
	}
	for _, name := range o.ai.ProviderNames() {
		if p, err := o.ai.Provider(name); err == nil {
			providers[name] = p
		}
	}
	if len(providers) == 0 {
		return map[string]bool{}, Errorf(KindServiceUnavailable, "", "no providers configured")
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = make(map[string]bool, len(providers))
	)
	for name, p := range providers {
		wg.Add(1)
		go func(name string, p Provider) {
			defer wg.Done()
			var err error
			if hc, ok := p.(HealthChecker); ok {
				err = hc.HealthCheck(ctx)
			}
			if err != nil {
				o.logger.Warn().Err(err).Str("provider", name).Str("breaker", o.breakers.state(name)).Msg("provider unhealthy")
			}
			mu.Lock()
			healthy[name] = err == nil
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	var down []string
	for name, ok := range healthy {
		if !ok {
			down = append(down, name)
		}
	}
	if len(down) == len(healthy) {
		sort.Strings(down)
		return healthy, Errorf(KindServiceUnavailable, "", "all providers unhealthy: %v", down)
	}
	return healthy, nil
}
