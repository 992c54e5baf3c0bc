// Package passthrough implements the "local" translation method. Without
// an external tool it returns every source text unchanged and makes no
// network calls. With a tool configured it bridges to a line-mode mod
// translator CLI: the batch is written to a JSON file, the tool is run
// with fixed flags, and its output file is renamed and consumed.
package passthrough

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/minios-linux/modtranslate/metrics"
	"github.com/minios-linux/modtranslate/translate"
)

// ProviderName is the provider id reported for the local method.
const ProviderName = "local"

// Translation modules understood by the external tool.
const (
	ModuleGoogle  = "google"
	ModuleGoogle2 = "google2"
	ModuleBing    = "bing"
)

// Modules lists the valid Options.Module values.
var Modules = []string{ModuleGoogle, ModuleGoogle2, ModuleBing}

// Options configures a Client.
type Options struct {
	// Tool is the external CLI (name on PATH or path). Empty selects identity mode.
	Tool string
	// Module is the tool's translation backend. Default: bing.
	Module string
	// Fallback lets the tool use its backup translator on errors.
	Fallback bool
	// ConcurrencyLimit is passed to the tool as --concurrencylimit. Default: 3.
	ConcurrencyLimit int
	// WorkDir receives the input and output files. Empty uses a temporary
	// directory removed after each batch.
	WorkDir string
	// Timeout bounds one tool run. Default: 300s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

func (o *Options) effectiveModule() string {
	if o.Module != "" {
		return o.Module
	}
	return ModuleBing
}

func (o *Options) effectiveConcurrencyLimit() int {
	if o.ConcurrencyLimit > 0 {
		return o.ConcurrencyLimit
	}
	return 3
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 300 * time.Second
}

// Client is the passthrough provider.
type Client struct {
	opts   Options
	logger zerolog.Logger
}

// New returns a passthrough client.
func New(opts Options) *Client {
	return &Client{
		opts:   opts,
		logger: opts.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name implements translate.Provider.
func (c *Client) Name() string { return ProviderName }

// Model reports "identity" or the external tool's module.
func (c *Client) Model() string {
	if c.opts.Tool == "" {
		return "identity"
	}
	return c.opts.effectiveModule()
}

// HealthCheck reports whether the external tool can be located.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.opts.Tool == "" {
		return nil
	}
	_, err := c.lookTool()
	return err
}

// Translate implements translate.Provider.
func (c *Client) Translate(ctx context.Context, batch translate.Batch) (*translate.Outcome, error) {
	start := time.Now()
	var (
		out *translate.Outcome
		err error
	)
	if c.opts.Tool == "" {
		out = c.identity(batch)
	} else {
		out, err = c.runTool(ctx, batch)
	}
	out.Metadata.Elapsed = time.Since(start)
	metrics.ObserveOutcome(ProviderName, out.Metadata.Elapsed.Seconds(), out.Metadata.SuccessCount, out.Metadata.FailureCount)
	return out, err
}

func (c *Client) identity(batch translate.Batch) *translate.Outcome {
	out := translate.NewOutcome(ProviderName, c.Model())
	for _, k := range batch.Keys {
		out.Succeed(k, batch.Texts[k])
	}
	return out
}

func (c *Client) lookTool() (string, error) {
	path, err := exec.LookPath(c.opts.Tool)
	if err != nil {
		return "", translate.NewError(translate.KindExternalToolMissing, ProviderName,
			fmt.Sprintf("translator tool %q not found", c.opts.Tool), err)
	}
	return path, nil
}

// ---------------------------------------------------------------------------
// External CLI bridge
// ---------------------------------------------------------------------------

func (c *Client) runTool(ctx context.Context, batch translate.Batch) (*translate.Outcome, error) {
	out := translate.NewOutcome(ProviderName, c.Model())
	failAll := func(err error) (*translate.Outcome, error) {
		for _, k := range batch.Keys {
			out.Fail(k, err.Error())
		}
		return out, err
	}

	tool, err := c.lookTool()
	if err != nil {
		return failAll(err)
	}

	dir := c.opts.WorkDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "modtranslate-*")
		if err != nil {
			return failAll(fmt.Errorf("creating work directory: %w", err))
		}
		defer os.RemoveAll(dir)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return failAll(fmt.Errorf("creating work directory: %w", err))
	}

	name := "batch-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	input := filepath.Join(dir, name+".json")
	payload := make(map[string]string, len(batch.Keys))
	for _, k := range batch.Keys {
		payload[k] = batch.Texts[k]
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return failAll(fmt.Errorf("encoding batch file: %w", err))
	}
	if err := os.WriteFile(input, data, 0644); err != nil {
		return failAll(fmt.Errorf("writing batch file: %w", err))
	}
	defer os.Remove(input)

	fallback := "no"
	if c.opts.Fallback {
		fallback = "yes"
	}
	args := []string{
		input,
		"--fallback", fallback,
		"--concurrencylimit", strconv.Itoa(c.opts.effectiveConcurrencyLimit()),
		"--module", c.opts.effectiveModule(),
		"--from", batch.SourceLang,
		"--to", batch.TargetLang,
		"--name", name,
	}

	runCtx, cancel := context.WithTimeout(ctx, c.opts.effectiveTimeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug().Str("tool", tool).Strs("args", args).Msg("running translator tool")
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return failAll(translate.NewError(translate.KindTimeout, ProviderName,
				fmt.Sprintf("translator tool exceeded %s", c.opts.effectiveTimeout()), err))
		}
		return failAll(translate.NewError(translate.KindTranslationFailed, ProviderName,
			"translator tool failed: "+translate.Truncate(strings.TrimSpace(stderr.String()), 300), err))
	}

	produced := filepath.Join(dir, name+"_"+batch.TargetLang+".json")
	final := filepath.Join(dir, batch.TargetLang+".json")
	if err := os.Rename(produced, final); err != nil {
		return failAll(translate.NewError(translate.KindTranslationFailed, ProviderName, "translator tool produced no output", err))
	}

	translated, err := readOutput(final)
	if err != nil {
		return failAll(translate.NewError(translate.KindTranslationFailed, ProviderName, "reading translator output", err))
	}

	for _, k := range batch.Keys {
		v := strings.TrimSpace(translated[k])
		if v == "" {
			out.Fail(k, "Missing translation for key: "+k)
			continue
		}
		out.Succeed(k, v)
	}
	if len(out.Translations) == 0 {
		return out, translate.Errorf(translate.KindTranslationFailed, ProviderName,
			"translator output contained none of the %d requested keys", len(batch.Keys))
	}
	return out, nil
}

// readOutput decodes the tool's key/value output. Non-string values are
// ignored.
func readOutput(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
