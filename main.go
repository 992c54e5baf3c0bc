// modtranslate translates Minecraft mod language files through a chain of
// local and LLM-backed translation methods.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minios-linux/modtranslate/batchfile"
	"github.com/minios-linux/modtranslate/cache"
	"github.com/minios-linux/modtranslate/config"
	"github.com/minios-linux/modtranslate/hosted"
	"github.com/minios-linux/modtranslate/i18n"
	"github.com/minios-linux/modtranslate/langmeta"
	"github.com/minios-linux/modtranslate/lockfile"
	"github.com/minios-linux/modtranslate/logging"
	"github.com/minios-linux/modtranslate/metrics"
	"github.com/minios-linux/modtranslate/ollama"
	"github.com/minios-linux/modtranslate/passthrough"
	"github.com/minios-linux/modtranslate/settings"
	"github.com/minios-linux/modtranslate/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configPath string
	verbose    bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modtranslate",
		Short: "Translate Minecraft mod language files",
		Long: `modtranslate translates Minecraft mod language files (key/value JSON).

Each batch runs through an ordered list of methods:
  local   passthrough copy, or an external translator CLI when configured
  ai      an LLM provider: ollama (self-hosted) or hosted (OpenAI-compatible)

Keys the local method misses can be escalated to the AI method (--fallback).
Results are cached per language pair for the lifetime of the process.

Commands:
  translate   Translate a batch or language file
  health      Check provider readiness
  languages   List supported language codes
  auth        Manage hosted API keys
  version     Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default ./"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newTranslateCmd(),
		newHealthCmd(),
		newLanguagesCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps bad input to 2 and everything else to 1.
func exitCode(err error) int {
	var te *translate.Error
	if errors.As(err, &te) && te.Kind.IsValidation() {
		return 2
	}
	return 1
}

// ---------------------------------------------------------------------------
// Runtime wiring
// ---------------------------------------------------------------------------

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func loadRuntime() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Environment, level)
	if err != nil {
		return nil, err
	}
	applyUILanguage(cfg.UILanguage, logger)
	return &app{cfg: cfg, logger: logger}, nil
}

// applyUILanguage switches the message catalog to the configured UI
// language. An empty setting keeps the one detected from the environment.
func applyUILanguage(lang string, logger zerolog.Logger) bool {
	if lang == "" {
		return false
	}
	if _, ok := i18n.Init(lang); !ok {
		logger.Warn().
			Str("ui_language", lang).
			Strs("available", i18n.Available()).
			Msg("no message catalog for UI language, messages stay untranslated")
		return false
	}
	logger.Debug().Str("ui_language", i18n.Active()).Msg("message catalog loaded")
	return true
}

// hostedKeys returns the hosted credential pool: configured keys first,
// then the ones stored with "auth add-key".
func hostedKeys(cfg *config.Config) []string {
	return config.MergeKeys(cfg.Hosted.Keys, settings.Keys(hosted.ProviderName))
}

func buildProviders(cfg *config.Config, logger zerolog.Logger) (translate.Provider, *translate.Registry, error) {
	local := passthrough.New(passthrough.Options{
		Tool:             cfg.Local.Tool,
		Module:           cfg.Local.Module,
		Fallback:         cfg.Local.ToolFallback,
		ConcurrencyLimit: cfg.Local.ConcurrencyLimit,
		WorkDir:          cfg.Local.WorkDir,
		Timeout:          cfg.Local.Timeout,
		Logger:           logger,
	})

	registry := translate.NewRegistry(cfg.Provider)

	gen := ollama.DefaultGenerateOptions
	gen.Temperature = cfg.Ollama.Temperature
	gen.NumCtx = cfg.Ollama.NumCtx
	llm := ollama.New(ollama.Options{
		BaseURL:        cfg.Ollama.BaseURL,
		Model:          cfg.Ollama.Model,
		Timeout:        cfg.Ollama.Timeout,
		MaxRetries:     cfg.Ollama.MaxRetries,
		RetryBaseDelay: cfg.Ollama.RetryBaseDelay,
		Generate:       gen,
		TagsCacheTTL:   cfg.Ollama.TagsCacheTTL,
		Governor:       ollama.NewGovernor(cfg.Ollama.MinInterval),
		Proxy:          cfg.Ollama.Proxy,
		Logger:         logger,
	})
	if err := registry.Register(llm); err != nil {
		return nil, nil, err
	}

	baseURL := cfg.Hosted.BaseURL
	if override := settings.GetBaseURL(hosted.ProviderName); override != "" {
		baseURL = override
	}
	remote := hosted.New(hosted.Options{
		BaseURL:          baseURL,
		QuotaURL:         cfg.Hosted.QuotaURL,
		Model:            cfg.Hosted.Model,
		Keys:             hostedKeys(cfg),
		MaxRetriesPerKey: cfg.Hosted.MaxRetriesPerKey,
		RotateCooldown:   cfg.Hosted.RotateCooldown,
		RetryBackoff:     cfg.Hosted.RetryBackoff,
		Temperature:      cfg.Hosted.Temperature,
		MaxTokens:        cfg.Hosted.MaxTokens,
		Timeout:          cfg.Hosted.Timeout,
		Proxy:            cfg.Hosted.Proxy,
		Logger:           logger,
	})
	if err := registry.Register(remote); err != nil {
		return nil, nil, err
	}

	return local, registry, nil
}

func buildOrchestrator(rt *app) (*translate.Orchestrator, error) {
	local, registry, err := buildProviders(rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}
	return translate.NewOrchestrator(translate.OrchestratorOptions{
		Local: local,
		AI:    registry,
		Cache: cache.New(rt.cfg.CacheSize),
		Breaker: translate.BreakerSettings{
			Disabled:         rt.cfg.Breaker.Disabled,
			FailureThreshold: rt.cfg.Breaker.FailureThreshold,
			OpenTimeout:      rt.cfg.Breaker.OpenTimeout,
		},
		Logger: rt.logger,
	}), nil
}

// interruptContext is cancelled on the first Ctrl-C.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, cancelling..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("modtranslate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	batchPath, output, report string
	from, to, provider        string
	methods                   []string
	fallback, fallbackSet     bool
	keepSource, incremental   bool
	timeout                   time.Duration
	metricsFile               string
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a batch or language file",
		Long: `Translate a batch document or a bare mod language file.

A batch document looks like:
  {"sourceLang": "en", "targetLang": "ru", "context": "Create mod",
   "methods": ["local", "ai"], "provider": "ollama", "fallback": true,
   "entries": {"item.create.wrench": "Wrench"}}

A bare language file ({"key": "text", ...}) uses --from/--to or the
configured defaults. Translations are written as a language file in the
input key order.

Examples:
  # Translate en_us.json to Russian with the local Ollama server
  modtranslate translate --batch en_us.json --to ru --methods ai -o ru_ru.json

  # Copy through locally, escalate missing keys to the hosted provider
  modtranslate translate --batch batch.json --provider hosted --fallback`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.fallbackSet = cmd.Flags().Changed("fallback")
			return runTranslate(cmd.OutOrStdout(), a)
		},
	}

	a.bindFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("batch")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"ollama\tSelf-hosted Ollama server",
			"hosted\tOpenAI-compatible hosted API with key rotation",
		}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("to", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return langmeta.Codes(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (a *translateArgs) bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&a.batchPath, "batch", "b", "", "Batch or language file to translate (required)")
	fs.StringVarP(&a.output, "output", "o", "", "Write the translated language file here (default: stdout)")
	fs.StringVar(&a.report, "report", "", "Write the full outcome (translations, failures, metadata) as JSON")
	fs.StringVar(&a.from, "from", "", "Source language (overrides the batch and config)")
	fs.StringVar(&a.to, "to", "", "Target language (overrides the batch and config)")
	fs.StringSliceVar(&a.methods, "methods", nil, "Method order, e.g. local,ai")
	fs.StringVar(&a.provider, "provider", "", "AI provider: ollama or hosted")
	fs.BoolVar(&a.fallback, "fallback", false, "Escalate keys the local method missed to the AI method")
	fs.BoolVar(&a.keepSource, "keep-source", false, "Write the source text for keys that failed")
	fs.BoolVar(&a.incremental, "incremental", true, "With --output, only translate keys that changed since the last run ("+lockfile.LockFileName+")")
	fs.DurationVar(&a.timeout, "timeout", 0, "Overall deadline for the batch (0 = none)")
	fs.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
}

func runTranslate(stdout io.Writer, a translateArgs) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	b, err := batchfile.ReadFile(a.batchPath, batchfile.Defaults{
		SourceLang: rt.cfg.SourceLang,
		TargetLang: rt.cfg.TargetLang,
		Methods:    rt.cfg.Methods,
		Provider:   rt.cfg.Provider,
		Fallback:   rt.cfg.Fallback,
	})
	if err != nil {
		return translate.NewError(translate.KindValidation, "", "invalid batch file", err)
	}
	applyOverrides(&b, a)
	if err := (translate.Validator{}).Validate(b); err != nil {
		return err
	}

	orch, err := buildOrchestrator(rt)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()
	if a.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, a.timeout)
		defer stop()
	}

	full := b
	var lock *lockfile.LockFile
	var reused map[string]string
	target := ""
	if a.output != "" && a.incremental {
		lock, err = lockfile.Load(filepath.Dir(a.output))
		if err != nil {
			return err
		}
		target = lockfile.TargetKey(filepath.Base(a.output))
		var pending []string
		reused, pending = lock.Plan(target, b, readExisting(a.output))
		if len(reused) > 0 {
			logInfo(i18n.N("%d key unchanged since the last run", "%d keys unchanged since the last run", len(reused)), len(reused))
		}
		if len(pending) == 0 {
			out := translate.NewOutcome("lockfile", "")
			for k, v := range reused {
				out.Succeed(k, v)
			}
			return writeResults(stdout, full, out, a)
		}
		b = b.Subset(pending)
	}

	logInfo(i18n.T("Translating %d keys %s → %s (methods: %s)"),
		len(b.Keys), b.SourceLang, b.TargetLang, strings.Join(b.Methods, ","))

	out, err := orch.Translate(ctx, b)
	if out != nil {
		for k, v := range reused {
			out.Translations[k] = v
		}
		if werr := writeResults(stdout, full, out, a); werr != nil {
			return werr
		}
		if lock != nil {
			lock.Record(target, full, out.Translations)
			if lerr := lock.Save(); lerr != nil {
				logWarning(i18n.T("Could not update %s: %v"), lock.Path(), lerr)
			} else {
				rt.logger.Debug().Str("path", lock.Path()).Str("contents", lock.Summary()).Msg("lock file updated")
			}
		}
		printSummary(b, out)
	}
	if a.metricsFile != "" {
		if merr := metrics.WriteTextfile(a.metricsFile); merr != nil {
			logWarning(i18n.T("Could not write metrics: %v"), merr)
		}
	}
	return err
}

// readExisting returns the translations already present in a previous
// output file, or nil when there is none.
func readExisting(path string) map[string]string {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	prev, err := batchfile.ReadFile(path, batchfile.Defaults{})
	if err != nil {
		logWarning(i18n.T("Ignoring unreadable %s: %v"), path, err)
		return nil
	}
	return prev.Texts
}

func applyOverrides(b *translate.Batch, a translateArgs) {
	if a.from != "" {
		b.SourceLang = a.from
	}
	if a.to != "" {
		b.TargetLang = a.to
	}
	if len(a.methods) > 0 {
		b.Methods = a.methods
	}
	if a.provider != "" {
		b.ProviderHint = a.provider
	}
	if a.fallbackSet {
		b.Fallback = a.fallback
	}
}

func writeResults(stdout io.Writer, b translate.Batch, out *translate.Outcome, a translateArgs) error {
	if a.output != "" {
		if err := batchfile.WriteFile(a.output, b, out, a.keepSource); err != nil {
			return err
		}
	} else if len(out.Translations) > 0 || a.keepSource {
		data, err := batchfile.Encode(b, out, a.keepSource)
		if err != nil {
			return err
		}
		if _, err := stdout.Write(data); err != nil {
			return err
		}
	}

	if a.report != "" {
		data, err := gojson.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(a.report, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", a.report, err)
		}
	}
	return nil
}

func printSummary(b translate.Batch, out *translate.Outcome) {
	md := out.Metadata
	for _, f := range out.Failures {
		logWarning("%s: %s", f.Key, f.Reason)
	}
	if md.SuccessCount == 0 {
		return
	}
	logSuccess(i18n.T("Translated %d of %d keys via %s in %s"),
		md.SuccessCount, len(b.Keys), md.Provider, md.Elapsed.Round(time.Millisecond))
	if md.CacheHits > 0 {
		logInfo(i18n.N("%d key served from cache", "%d keys served from cache", md.CacheHits), md.CacheHits)
	}
	if md.FallbackUsed {
		logInfo("%s", i18n.T("Missing keys were escalated to the AI method"))
	}
}

// ---------------------------------------------------------------------------
// health
// ---------------------------------------------------------------------------

func newHealthCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check provider readiness",
		Long: `Probe every configured provider: the local tool on PATH, the Ollama
server and model, and the hosted key quota. Fails only when no provider is
usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			orch, err := buildOrchestrator(rt)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			status, err := orch.CheckHealth(ctx)
			printHealth(cmd.OutOrStdout(), status)
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Deadline for all probes")
	return cmd
}

func printHealth(w io.Writer, status map[string]bool) {
	for _, name := range sortedKeys(status) {
		state := colorGreen + i18n.T("ready") + colorReset
		if !status[name] {
			state = colorRed + i18n.T("unavailable") + colorReset
		}
		fmt.Fprintf(w, "  %-10s %s\n", name, state)
	}
}

// ---------------------------------------------------------------------------
// languages
// ---------------------------------------------------------------------------

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "languages",
		Aliases: []string{"langs"},
		Short:   "List supported language codes",
		Run: func(cmd *cobra.Command, args []string) {
			printLanguages(cmd.OutOrStdout())
		},
	}
}

func printLanguages(w io.Writer) {
	for _, code := range langmeta.Codes() {
		line := fmt.Sprintf("  %-8s %s", code, langmeta.Name(code))
		if langmeta.IsCJK(code) {
			line += "  (CJK)"
		}
		fmt.Fprintln(w, line)
	}
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage hosted API keys",
		Long: `Manage the hosted provider's credential pool.

Keys are tried in order; the client rotates to the next key when one is rate
limited or out of credits. Stored keys are appended after hosted.keys from the
configuration file and MODTR_HOSTED_KEYS.

Examples:
  modtranslate auth add-key sk-or-v1-...      Append a key to the pool
  modtranslate auth remove-key 2              Remove the second key
  modtranslate auth list                      Show the pool (masked)
  modtranslate auth set-base-url https://...  Override the hosted endpoint`,
	}

	cmd.AddCommand(
		newAuthAddKeyCmd(),
		newAuthRemoveKeyCmd(),
		newAuthListCmd(),
		newAuthSetBaseURLCmd(),
	)

	return cmd
}

func newAuthAddKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-key KEY",
		Short: "Append an API key to the hosted pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := settings.AddKey(hosted.ProviderName, args[0])
			if err != nil {
				return err
			}
			if !added {
				logWarning(i18n.T("Key %s is already stored"), settings.MaskKey(args[0]))
				return nil
			}
			logSuccess(i18n.T("Stored key %s in %s"), settings.MaskKey(args[0]), settings.FilePath())
			return nil
		},
	}
}

func newAuthRemoveKeyCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "remove-key [KEY|N]",
		Short: "Remove a key by value or list position",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if err := settings.Remove(hosted.ProviderName); err != nil {
					return err
				}
				logSuccess("%s", i18n.T("Removed all stored hosted keys"))
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("specify a key, its position, or --all")
			}
			removed, err := settings.RemoveKey(hosted.ProviderName, args[0])
			if err != nil {
				return err
			}
			logSuccess(i18n.T("Removed key %s"), settings.MaskKey(removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored key")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the hosted credential pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			printKeyPool(cmd.OutOrStdout(), cfg.Hosted.Keys, settings.Keys(hosted.ProviderName))
			return nil
		},
	}
}

func printKeyPool(w io.Writer, configured, stored []string) {
	fmt.Fprintf(w, "\n%s%s%s\n", colorBlue, i18n.T("Hosted credential pool"), colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))

	pool := config.MergeKeys(configured, stored)
	if len(pool) == 0 {
		fmt.Fprintf(w, "  %s%s%s\n\n", colorRed, i18n.T("no keys configured"), colorReset)
		return
	}
	fromStore := make(map[string]bool, len(stored))
	for _, k := range stored {
		fromStore[k] = true
	}
	for i, k := range pool {
		source := "config/env"
		if fromStore[k] && !slices.Contains(configured, k) {
			source = "auth.json"
		}
		fmt.Fprintf(w, "  %2d. %-16s %s\n", i+1, settings.MaskKey(k), source)
	}
	fmt.Fprintln(w)
}

func newAuthSetBaseURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-base-url URL",
		Short: "Override the hosted API endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.SetBaseURL(hosted.ProviderName, args[0]); err != nil {
				return err
			}
			logSuccess(i18n.T("Hosted endpoint set to %s"), args[0])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
