// Package ollama implements the translation provider backed by a
// self-hosted LLM server speaking the Ollama generate API. One generate
// call translates a whole batch; the free-form response is recovered into
// a key/value map and accepted key by key.
package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/minios-linux/modtranslate/metrics"
	"github.com/minios-linux/modtranslate/translate"
)

// ProviderName is the registry name of the local LLM provider.
const ProviderName = "ollama"

const tagsCacheKey = "tags"

// GenerateOptions are the sampling options sent with every generate call.
type GenerateOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	NumCtx        int     `json:"num_ctx"`
	NumPredict    int     `json:"num_predict"`
}

// DefaultGenerateOptions favors literal, low-variance output.
var DefaultGenerateOptions = GenerateOptions{
	Temperature:   0.2,
	TopP:          0.9,
	RepeatPenalty: 1.1,
	NumCtx:        8192,
	NumPredict:    4096,
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server root. Default: http://localhost:11434.
	BaseURL string
	// Model is the model name as listed by /api/tags.
	Model string
	// Timeout is the hard deadline of one generate call. Default: 300s.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Default: 3.
	MaxRetries int
	// RetryBaseDelay is multiplied by the attempt number between retries. Default: 2s.
	RetryBaseDelay time.Duration
	// Generate holds sampling options; the zero value uses DefaultGenerateOptions.
	Generate GenerateOptions
	// Examples override the built-in prompt examples.
	Examples []Example
	// TagsCacheTTL caches the model listing used by HealthCheck. Zero disables.
	TagsCacheTTL time.Duration
	// Governor paces request starts. Share one per server; nil creates a private one.
	Governor *Governor
	// MinInterval is used only when Governor is nil.
	MinInterval time.Duration
	Proxy       string
	HTTPClient  *http.Client
	Sleep       translate.SleepFunc
	Logger      zerolog.Logger
}

func (o *Options) effectiveBaseURL() string {
	if o.BaseURL != "" {
		return strings.TrimRight(o.BaseURL, "/")
	}
	return "http://localhost:11434"
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 300 * time.Second
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) effectiveRetryBaseDelay() time.Duration {
	if o.RetryBaseDelay > 0 {
		return o.RetryBaseDelay
	}
	return 2 * time.Second
}

func (o *Options) effectiveGenerate() GenerateOptions {
	if o.Generate == (GenerateOptions{}) {
		return DefaultGenerateOptions
	}
	return o.Generate
}

// Client is the local LLM provider.
type Client struct {
	opts       Options
	baseURL    string
	httpClient *http.Client
	governor   *Governor
	tags       *gocache.Cache
	sleep      translate.SleepFunc
	logger     zerolog.Logger
}

// New returns a local LLM client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = translate.NewHTTPClient(opts.Proxy, 0)
	}
	governor := opts.Governor
	if governor == nil {
		governor = NewGovernor(opts.MinInterval)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = translate.Sleep
	}
	c := &Client{
		opts:       opts,
		baseURL:    opts.effectiveBaseURL(),
		httpClient: httpClient,
		governor:   governor,
		sleep:      sleep,
		logger:     opts.Logger.With().Str("provider", ProviderName).Str("model", opts.Model).Logger(),
	}
	if opts.TagsCacheTTL > 0 {
		c.tags = gocache.New(opts.TagsCacheTTL, 2*opts.TagsCacheTTL)
	}
	return c
}

// Name implements translate.Provider.
func (c *Client) Name() string { return ProviderName }

// Model implements translate.Provider.
func (c *Client) Model() string { return c.opts.Model }

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// HealthCheck verifies the server is reachable and serves the configured
// model (exact or substring match against the listed names).
func (c *Client) HealthCheck(ctx context.Context) error {
	names, err := c.listModels(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == c.opts.Model || strings.Contains(name, c.opts.Model) {
			return nil
		}
	}
	return translate.Errorf(translate.KindModelNotFound, ProviderName,
		"model %q not found (available: %s)", c.opts.Model, strings.Join(names, ", "))
}

func (c *Client) listModels(ctx context.Context) ([]string, error) {
	if c.tags != nil {
		if cached, ok := c.tags.Get(tagsCacheKey); ok {
			return cached.([]string), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, ProviderName, "listing models", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, ProviderName, "reading tags response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, translate.Errorf(translate.KindServiceUnavailable, ProviderName,
			"tags endpoint returned status %d: %s", resp.StatusCode, translate.Truncate(string(body), 200))
	}

	var tr tagsResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, translate.NewError(translate.KindServiceUnavailable, ProviderName, "parsing tags response", err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		} else if m.Model != "" {
			names = append(names, m.Model)
		}
	}
	if c.tags != nil {
		c.tags.SetDefault(tagsCacheKey, names)
	}
	return names, nil
}

// ---------------------------------------------------------------------------
// Translation
// ---------------------------------------------------------------------------

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Translate implements translate.Provider. Keys missing from the recovered
// response become per-key failures; the call fails only when no key was
// recovered.
func (c *Client) Translate(ctx context.Context, batch translate.Batch) (*translate.Outcome, error) {
	start := time.Now()
	out := translate.NewOutcome(ProviderName, c.opts.Model)

	parsed, err := c.translateWithRetry(ctx, batch)
	if err != nil {
		for _, k := range batch.Keys {
			out.Fail(k, err.Error())
		}
		out.Metadata.Elapsed = time.Since(start)
		metrics.ObserveOutcome(ProviderName, out.Metadata.Elapsed.Seconds(), 0, len(batch.Keys))
		return out, err
	}

	for _, k := range batch.Keys {
		v, ok := parsed[k]
		if ok {
			v = postProcess(v, batch.TargetLang)
		}
		if !ok || v == "" {
			out.Fail(k, "Missing translation for key: "+k)
			continue
		}
		out.Succeed(k, v)
	}

	out.Metadata.Elapsed = time.Since(start)
	metrics.ObserveOutcome(ProviderName, out.Metadata.Elapsed.Seconds(), out.Metadata.SuccessCount, out.Metadata.FailureCount)
	c.logger.Debug().
		Int("translated", out.Metadata.SuccessCount).
		Int("missing", out.Metadata.FailureCount).
		Dur("elapsed", out.Metadata.Elapsed).
		Msg("batch translated")

	if len(out.Translations) == 0 {
		return out, translate.Errorf(translate.KindTranslationFailed, ProviderName,
			"response contained none of the %d requested keys", len(batch.Keys))
	}
	return out, nil
}

// translateWithRetry performs the generate call and response recovery in
// a bounded loop. Model and timeout errors end the loop at once.
func (c *Client) translateWithRetry(ctx context.Context, batch translate.Batch) (map[string]string, error) {
	prompt := buildPrompt(batch, examplesFor(c.opts.Examples, batch.TargetLang))
	maxRetries := c.opts.effectiveMaxRetries()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.opts.effectiveRetryBaseDelay() * time.Duration(attempt)
			c.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("wait", wait).Msg("retrying generate")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, contextError(err)
			}
		}

		if err := c.governor.Wait(ctx); err != nil {
			return nil, contextError(err)
		}

		raw, err := c.generate(ctx, prompt)
		if err == nil {
			var parsed map[string]string
			parsed, err = Recover(raw)
			if err == nil {
				return parsed, nil
			}
		}
		lastErr = err
		if !translate.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted all %d retries: %w", maxRetries, lastErr)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return translate.NewError(translate.KindTimeout, ProviderName, "batch deadline exceeded", err)
	}
	return err
}

// generate issues one generate call under the configured deadline.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.opts.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.opts.effectiveGenerate(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding generate request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.effectiveTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", translate.NewError(translate.KindTimeout, ProviderName,
				fmt.Sprintf("generate exceeded %s", c.opts.effectiveTimeout()), err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", translate.NewError(translate.KindServiceUnavailable, ProviderName, "generate request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", translate.NewError(translate.KindTimeout, ProviderName, "generate response deadline exceeded", err)
		}
		return "", translate.NewError(translate.KindServiceUnavailable, ProviderName, "reading generate response", err)
	}

	if resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(string(respBody)), "not found") {
		return "", translate.Errorf(translate.KindModelNotFound, ProviderName, "model %q not found", c.opts.Model)
	}
	if resp.StatusCode != http.StatusOK {
		return "", translate.Errorf(translate.KindServiceUnavailable, ProviderName,
			"generate returned status %d: %s", resp.StatusCode, translate.Truncate(string(respBody), 300))
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", translate.NewError(translate.KindTranslationFailed, ProviderName, "decoding generate response", err)
	}
	if gr.Error != "" {
		return "", translate.Errorf(translate.KindServiceUnavailable, ProviderName, "generate error: %s", gr.Error)
	}
	return gr.Response, nil
}
