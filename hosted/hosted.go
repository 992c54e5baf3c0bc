// Package hosted implements the translation provider backed by an
// OpenAI-compatible chat completion API (OpenRouter by default) with a
// rotating pool of API keys, quota introspection and pacing.
package hosted

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/minios-linux/modtranslate/credpool"
	"github.com/minios-linux/modtranslate/langmeta"
	"github.com/minios-linux/modtranslate/metrics"
	"github.com/minios-linux/modtranslate/translate"
)

// ProviderName is the registry name of the hosted provider.
const ProviderName = "hosted"

// Options configures a Client.
type Options struct {
	// BaseURL is the OpenAI-compatible API root (e.g. https://openrouter.ai/api/v1).
	BaseURL string
	// QuotaURL is the key-introspection endpoint. Empty disables quota probing.
	QuotaURL string
	// Model is the chat model identifier.
	Model string
	// Keys is the credential pool, tried in order.
	Keys []string
	// MaxRetriesPerKey bounds attempts on one credential. Default: 3.
	MaxRetriesPerKey int
	// RotateCooldown is the pause after rotating credentials. Default: 4s.
	RotateCooldown time.Duration
	// RetryBackoff is the pause between attempts on the same credential. Default: 2s.
	RetryBackoff time.Duration
	// Temperature for completions. Default: 0.3.
	Temperature float32
	// MaxTokens for completions. Default: 1024.
	MaxTokens int
	// Timeout bounds one completion call. Default: 120s.
	Timeout time.Duration
	// Proxy is an optional HTTP proxy URL.
	Proxy string
	// HTTPClient overrides the client built from Proxy.
	HTTPClient *http.Client
	// Sleep overrides the real-time sleep used for cooldowns and pacing.
	Sleep translate.SleepFunc
	// Logger receives client events.
	Logger zerolog.Logger
}

func (o *Options) effectiveMaxRetriesPerKey() int {
	if o.MaxRetriesPerKey > 0 {
		return o.MaxRetriesPerKey
	}
	return 3
}

func (o *Options) effectiveRotateCooldown() time.Duration {
	if o.RotateCooldown > 0 {
		return o.RotateCooldown
	}
	return 4 * time.Second
}

func (o *Options) effectiveRetryBackoff() time.Duration {
	if o.RetryBackoff > 0 {
		return o.RetryBackoff
	}
	return 2 * time.Second
}

func (o *Options) effectiveTemperature() float32 {
	if o.Temperature > 0 {
		return o.Temperature
	}
	return 0.3
}

func (o *Options) effectiveMaxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 1024
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 120 * time.Second
}

// Client is the hosted provider. The credential cursor and quota state are
// owned by the client and guarded by its mutex; keys of one batch are
// translated sequentially.
type Client struct {
	opts       Options
	httpClient *http.Client
	sleep      translate.SleepFunc
	logger     zerolog.Logger

	mu      sync.Mutex
	pool    *credpool.Pool
	quota   *QuotaState
	clients map[string]*openai.Client
}

// New returns a hosted client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = translate.NewHTTPClient(opts.Proxy, 0)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = translate.Sleep
	}
	return &Client{
		opts:       opts,
		httpClient: httpClient,
		sleep:      sleep,
		logger:     opts.Logger.With().Str("provider", ProviderName).Logger(),
		pool:       credpool.New(opts.Keys),
		clients:    make(map[string]*openai.Client),
	}
}

// Name implements translate.Provider.
func (c *Client) Name() string { return ProviderName }

// Model implements translate.Provider.
func (c *Client) Model() string { return c.opts.Model }

// CurrentIndex returns the credential cursor.
func (c *Client) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.CurrentIndex()
}

// PoolSize returns the number of credentials.
func (c *Client) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Size()
}

// HealthCheck probes the quota endpoint with the current credential. With
// probing disabled, a non-empty pool counts as healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.PoolSize() == 0 {
		return translate.NewError(translate.KindNoCredentials, ProviderName, "", credpool.ErrNoCredentials)
	}
	_, err := c.ProbeQuota(ctx)
	return err
}

// Translate implements translate.Provider. Keys are translated one at a
// time in batch order; a failed key is recorded and the batch continues.
func (c *Client) Translate(ctx context.Context, batch translate.Batch) (*translate.Outcome, error) {
	start := time.Now()
	out := translate.NewOutcome(ProviderName, c.opts.Model)

	var lastErr error
	for i, key := range batch.Keys {
		if ctx.Err() != nil {
			for _, rest := range batch.Keys[i:] {
				out.Fail(rest, ctx.Err().Error())
			}
			lastErr = ctx.Err()
			break
		}
		text, err := c.TranslateOne(ctx, batch.Texts[key], batch.SourceLang, batch.TargetLang, batch.Context)
		if err != nil {
			lastErr = err
			out.Fail(key, err.Error())
			c.logger.Warn().Err(err).Str("key", key).Msg("key not translated")
			continue
		}
		out.Succeed(key, text)
	}

	out.Metadata.Elapsed = time.Since(start)
	metrics.ObserveOutcome(ProviderName, out.Metadata.Elapsed.Seconds(), out.Metadata.SuccessCount, out.Metadata.FailureCount)

	if len(out.Translations) == 0 && len(batch.Keys) > 0 {
		kind := translate.KindOf(lastErr)
		if kind == "" {
			kind = translate.KindTranslationFailed
		}
		return out, translate.NewError(kind, ProviderName, "no keys translated", lastErr)
	}
	return out, nil
}

// TranslateOne translates a single text. Attempts stay on one credential
// for up to MaxRetriesPerKey tries; a rate-limit or quota error, or
// running out of tries, rotates to the next credential. The total number of
// attempts is bounded by MaxRetriesPerKey × pool size.
func (c *Client) TranslateOne(ctx context.Context, text, sourceLang, targetLang, hints string) (string, error) {
	size := c.PoolSize()
	if size == 0 {
		return "", translate.NewError(translate.KindNoCredentials, ProviderName, "", credpool.ErrNoCredentials)
	}

	perKey := c.opts.effectiveMaxRetriesPerKey()
	budget := perKey * size
	prompt := buildPrompt(text, sourceLang, targetLang, hints)

	attempts := 0
	var lastErr error
	for attempts < budget {
		if _, err := c.ProbeQuota(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("quota probe failed, continuing")
		}
		if err := c.Pace(ctx); err != nil {
			return "", contextError(err)
		}

		idx, key, err := c.currentCredential()
		if err != nil {
			return "", err
		}

		for inner := 1; inner <= perKey && attempts < budget; inner++ {
			attempts++
			result, err := c.complete(ctx, key, prompt)
			if err == nil {
				if result == "" {
					return "", translate.Errorf(translate.KindTranslationFailed, ProviderName, "empty completion")
				}
				c.consumeQuota()
				return result, nil
			}
			if ctx.Err() != nil {
				return "", contextError(ctx.Err())
			}
			if errors.Is(err, translate.ErrTimeout) {
				return "", err
			}
			lastErr = err

			rateLimited := isCapacityError(err)
			if rateLimited || inner == perKey {
				reason := "retries"
				if rateLimited {
					reason = "rate_limit"
				}
				c.rotateFrom(idx, reason)
				c.logger.Info().
					Int("key_index", idx).
					Int("attempt", attempts).
					Str("reason", reason).
					Err(err).
					Msg("rotating credential")
				if attempts == budget {
					break
				}
				if err := c.sleep(ctx, c.opts.effectiveRotateCooldown()); err != nil {
					return "", contextError(err)
				}
				break
			}

			c.logger.Debug().Int("key_index", idx).Int("attempt", inner).Err(err).Msg("retrying on same credential")
			if err := c.sleep(ctx, c.opts.effectiveRetryBackoff()); err != nil {
				return "", contextError(err)
			}
		}
	}

	return "", translate.NewError(translate.KindCredentialsExhausted, ProviderName,
		fmt.Sprintf("no credential succeeded after %d attempts", attempts), lastErr)
}

func (c *Client) currentCredential() (int, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, err := c.pool.Current()
	if err != nil {
		return 0, "", err
	}
	return c.pool.CurrentIndex(), key, nil
}

// rotateFrom advances the pool only if it still points at idx. When a
// concurrent request already rotated away from idx, its choice is adopted
// instead of skipping another credential.
func (c *Client) rotateFrom(idx int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool.CurrentIndex() != idx {
		return
	}
	if _, err := c.pool.Rotate(); err != nil {
		return
	}
	c.quota = nil
	metrics.CredentialRotations.WithLabelValues(ProviderName, reason).Inc()
}

func (c *Client) openaiClient(key string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	cfg := openai.DefaultConfig(key)
	if c.opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(c.opts.BaseURL, "/")
	}
	cfg.HTTPClient = c.httpClient
	cl := openai.NewClientWithConfig(cfg)
	c.clients[key] = cl
	return cl
}

// complete issues one chat completion and returns the trimmed content of
// the first choice.
func (c *Client) complete(ctx context.Context, key, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.effectiveTimeout())
	defer cancel()

	resp, err := c.openaiClient(key).CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.opts.effectiveMaxTokens(),
		Temperature: c.opts.effectiveTemperature(),
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", translate.NewError(translate.KindTimeout, ProviderName, "completion deadline exceeded", err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

var capacityMarkers = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many requests",
	"quota",
	"insufficient credits",
	"credits",
}

// isCapacityError reports whether err means the current credential is out
// of capacity (throttled, out of quota or credits, or rejected) rather than
// a transient failure worth retrying on the same key.
func isCapacityError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range capacityMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return translate.NewError(translate.KindTimeout, ProviderName, "request deadline exceeded", err)
	}
	return err
}

// ---------------------------------------------------------------------------
// Prompt
// ---------------------------------------------------------------------------

func buildPrompt(text, sourceLang, targetLang, hints string) string {
	var sb strings.Builder
	sb.WriteString("You are translating user interface strings of a Minecraft mod.\n")
	if hints = strings.TrimSpace(hints); hints != "" {
		sb.WriteString("Mod context: ")
		sb.WriteString(hints)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Translate the following text from %s to %s. ", langmeta.Name(sourceLang), langmeta.Name(targetLang))
	sb.WriteString("Keep formatting codes (§a, %s, %d, {0}) unchanged. ")
	sb.WriteString("Reply with the translation only, without quotes, notes or any extra commentary.\n\n")
	sb.WriteString(text)
	return sb.String()
}
