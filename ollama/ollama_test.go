package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/modtranslate/translate"
)

type fakeServer struct {
	tagsCalls     int32
	generateCalls int32
	models        []string
	generate      func(call int, req generateRequest, w http.ResponseWriter)

	mu       sync.Mutex
	requests []generateRequest
}

func newFakeServer(t *testing.T, fs *fakeServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			atomic.AddInt32(&fs.tagsCalls, 1)
			models := make([]map[string]string, 0, len(fs.models))
			for _, m := range fs.models {
				models = append(models, map[string]string{"name": m})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
		case "/api/generate":
			n := atomic.AddInt32(&fs.generateCalls, 1)
			var req generateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			fs.mu.Lock()
			fs.requests = append(fs.requests, req)
			fs.mu.Unlock()
			fs.generate(int(n), req, w)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func respond(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
}

type sleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(srv *httptest.Server, rec *sleeps, mutate func(*Options)) *Client {
	opts := Options{
		BaseURL:    srv.URL,
		Model:      "llama3:8b",
		HTTPClient: srv.Client(),
		Sleep:      rec.sleep,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func batch(keys ...string) translate.Batch {
	b := translate.Batch{SourceLang: "en", TargetLang: "ru", Texts: map[string]string{}}
	for _, k := range keys {
		b.Keys = append(b.Keys, k)
		b.Texts[k] = "text of " + k
	}
	return b
}

func TestHealthCheck(t *testing.T) {
	fs := &fakeServer{models: []string{"mistral:7b", "llama3:8b"}}
	srv := newFakeServer(t, fs)

	require.NoError(t, newTestClient(srv, &sleeps{}, nil).HealthCheck(context.Background()))

	substring := newTestClient(srv, &sleeps{}, func(o *Options) { o.Model = "llama3" })
	require.NoError(t, substring.HealthCheck(context.Background()))

	missing := newTestClient(srv, &sleeps{}, func(o *Options) { o.Model = "qwen2" })
	err := missing.HealthCheck(context.Background())
	assert.True(t, errors.Is(err, translate.ErrModelNotFound))
}

func TestHealthCheckUnreachable(t *testing.T) {
	fs := &fakeServer{}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, nil)
	srv.Close()

	err := c.HealthCheck(context.Background())
	assert.True(t, errors.Is(err, translate.ErrServiceUnavailable))
}

func TestHealthCheckTruncatedTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "200")
		_, _ = w.Write([]byte(`{"models": [{"name": "lla`))
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(srv, &sleeps{}, nil)

	err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrServiceUnavailable))
	assert.Contains(t, err.Error(), "reading tags response")
}

func TestHealthCheckCachesTags(t *testing.T) {
	fs := &fakeServer{models: []string{"llama3:8b"}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, func(o *Options) { o.TagsCacheTTL = time.Minute })

	require.NoError(t, c.HealthCheck(context.Background()))
	require.NoError(t, c.HealthCheck(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.tagsCalls))
}

func TestTranslateIgnoresProse(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, "Sure! Here you go: {\"a\":\"Привет\"}")
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, nil)

	out, err := c.Translate(context.Background(), batch("a"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "Привет"}, out.Translations)
	assert.Empty(t, out.Failures)
	assert.Equal(t, ProviderName, out.Metadata.Provider)
	assert.Equal(t, "llama3:8b", out.Metadata.Model)
}

func TestTranslatePartialResult(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, `{"a": "x", "unrequested": "y", "c": "   "}`)
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, nil)

	out, err := c.Translate(context.Background(), batch("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "x"}, out.Translations)
	require.Len(t, out.Failures, 2)
	assert.Equal(t, translate.Failure{Key: "b", Reason: "Missing translation for key: b"}, out.Failures[0])
	assert.Equal(t, "c", out.Failures[1].Key)
	assert.Equal(t, 1, out.Metadata.SuccessCount)
	assert.Equal(t, 2, out.Metadata.FailureCount)
}

func TestTranslateSendsOptionsAndPrompt(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, `{"item.sword": "Меч"}`)
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, nil)

	b := batch("item.sword")
	b.Context = "Example Mod"
	_, err := c.Translate(context.Background(), b)
	require.NoError(t, err)

	require.Len(t, fs.requests, 1)
	req := fs.requests[0]
	assert.Equal(t, "llama3:8b", req.Model)
	assert.False(t, req.Stream)
	assert.Equal(t, DefaultGenerateOptions, req.Options)
	assert.Contains(t, req.Prompt, `"item.sword": "text of item.sword"`)
	assert.Contains(t, req.Prompt, "from English to Russian")
	assert.Contains(t, req.Prompt, "Mod context: Example Mod")
	assert.Contains(t, req.Prompt, "Рубиновый меч")
}

func TestTranslateRetriesWithGrowingBackoff(t *testing.T) {
	fs := &fakeServer{generate: func(call int, _ generateRequest, w http.ResponseWriter) {
		if call < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		respond(w, `{"a": "x"}`)
	}}
	srv := newFakeServer(t, fs)
	rec := &sleeps{}
	c := newTestClient(srv, rec, nil)

	out, err := c.Translate(context.Background(), batch("a"))
	require.NoError(t, err)
	assert.Equal(t, "x", out.Translations["a"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&fs.generateCalls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestTranslateModelNotFoundIsNotRetried(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama3:8b' not found, try pulling it first"}`))
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, nil)

	out, err := c.Translate(context.Background(), batch("a", "b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrModelNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.generateCalls))
	assert.Len(t, out.Failures, 2)
}

func TestTranslateTimeoutIsNotRetried(t *testing.T) {
	release := make(chan struct{})
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		respond(w, `{"a": "late"}`)
	}}
	srv := newFakeServer(t, fs)
	defer close(release)
	c := newTestClient(srv, &sleeps{}, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	_, err := c.Translate(context.Background(), batch("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrTimeout))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.generateCalls))
}

func TestTranslateDeadlineDuringBackoffIsTimeout(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, func(o *Options) {
		o.Sleep = func(context.Context, time.Duration) error { return context.DeadlineExceeded }
	})

	out, err := c.Translate(context.Background(), batch("a"))
	require.Error(t, err)
	assert.Equal(t, translate.KindTimeout, translate.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.generateCalls))
	assert.Len(t, out.Failures, 1)
}

func TestTranslateDeadlineInGovernorIsTimeout(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, `{"a": "x"}`)
	}}
	srv := newFakeServer(t, fs)
	g := NewGovernor(time.Hour)
	require.NoError(t, g.Wait(context.Background()))
	c := newTestClient(srv, &sleeps{}, func(o *Options) { o.Governor = g })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Translate(ctx, batch("a"))
	require.Error(t, err)
	assert.Equal(t, translate.KindTimeout, translate.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fs.generateCalls))
}

func TestTranslateUnrecoverableResponse(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, "I am sorry, I cannot help with that.")
	}}
	srv := newFakeServer(t, fs)
	c := newTestClient(srv, &sleeps{}, func(o *Options) { o.MaxRetries = 1 })

	_, err := c.Translate(context.Background(), batch("a"))
	require.Error(t, err)
	assert.Equal(t, translate.KindTranslationFailed, translate.KindOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fs.generateCalls))
}

func TestGovernorSpacesRequestStarts(t *testing.T) {
	g := NewGovernor(40 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, g.MinInterval())
}

func TestGovernorSharedAcrossClients(t *testing.T) {
	fs := &fakeServer{generate: func(_ int, _ generateRequest, w http.ResponseWriter) {
		respond(w, `{"a": "x"}`)
	}}
	srv := newFakeServer(t, fs)
	g := NewGovernor(40 * time.Millisecond)
	c1 := newTestClient(srv, &sleeps{}, func(o *Options) { o.Governor = g })
	c2 := newTestClient(srv, &sleeps{}, func(o *Options) { o.Governor = g })

	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range []*Client{c1, c2, c1} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			_, _ = c.Translate(context.Background(), batch("a"))
		}(c)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestGovernorWaitBeyondDeadline(t *testing.T) {
	g := NewGovernor(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := g.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 40*time.Millisecond, "does not sleep until the deadline")
}

func TestGovernorDisabled(t *testing.T) {
	g := NewGovernor(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestBuildPromptCapsExamples(t *testing.T) {
	examples := []Example{
		{Key: "k1", Source: "one", Translation: "1"},
		{Key: "k2", Source: "two", Translation: "2"},
		{Key: "k3", Source: "three", Translation: "3"},
	}
	p := buildPrompt(batch("a"), examples)
	assert.Contains(t, p, `{"k1":"one"}`)
	assert.Contains(t, p, `{"k2":"two"}`)
	assert.NotContains(t, p, `"k3"`)

	none := buildPrompt(translate.Batch{SourceLang: "en", TargetLang: "sw", Keys: []string{"a"}, Texts: map[string]string{"a": "x"}},
		examplesFor(nil, "sw"))
	assert.NotContains(t, none, "Examples:")
}
