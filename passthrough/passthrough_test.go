package passthrough

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/modtranslate/translate"
)

func batch() translate.Batch {
	return translate.Batch{
		SourceLang: "en",
		TargetLang: "ru",
		Keys:       []string{"a_skip", "b", "c"},
		Texts:      map[string]string{"a_skip": "Skip me", "b": "Hello", "c": "World"},
	}
}

// writeTool writes a fake translator CLI. It records its arguments, drops
// lines mentioning "a_skip" and prefixes every value with "RU:".
func writeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-translator")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

const translatingTool = `in="$1"
echo "$@" > args.txt
shift
while [ $# -gt 0 ]; do
  case "$1" in
    --to) to="$2"; shift ;;
    --name) name="$2"; shift ;;
  esac
  shift
done
grep -v '"a_skip"' "$in" | sed -e 's/: "/: "RU:/' > "${name}_${to}.json"
`

func TestIdentityMode(t *testing.T) {
	c := New(Options{})
	out, err := c.Translate(context.Background(), translate.Batch{
		SourceLang: "en",
		TargetLang: "ru",
		Keys:       []string{"a"},
		Texts:      map[string]string{"a": "Hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "Hello"}, out.Translations)
	assert.Equal(t, ProviderName, out.Metadata.Provider)
	assert.Equal(t, "identity", out.Metadata.Model)
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestToolMissing(t *testing.T) {
	c := New(Options{Tool: "definitely-not-a-real-translator-binary"})

	out, err := c.Translate(context.Background(), batch())
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrExternalToolMissing))
	assert.True(t, translate.KindOf(err).IsValidation())
	assert.Len(t, out.Failures, 3)

	assert.True(t, errors.Is(c.HealthCheck(context.Background()), translate.ErrExternalToolMissing))
}

func TestToolBridge(t *testing.T) {
	tool := writeTool(t, translatingTool)
	work := t.TempDir()
	c := New(Options{Tool: tool, WorkDir: work, Module: ModuleGoogle2, Fallback: true, ConcurrencyLimit: 5})

	out, err := c.Translate(context.Background(), batch())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "RU:Hello", "c": "RU:World"}, out.Translations)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, translate.Failure{Key: "a_skip", Reason: "Missing translation for key: a_skip"}, out.Failures[0])
	assert.Equal(t, ModuleGoogle2, out.Metadata.Model)

	args, err := os.ReadFile(filepath.Join(work, "args.txt"))
	require.NoError(t, err)
	fields := strings.Fields(string(args))
	require.Len(t, fields, 13)
	assert.True(t, strings.HasSuffix(fields[0], ".json"))
	assert.Equal(t, []string{
		"--fallback", "yes",
		"--concurrencylimit", "5",
		"--module", "google2",
		"--from", "en",
		"--to", "ru",
		"--name",
	}, fields[1:12])

	// The output was renamed to <target>.json and the input removed.
	_, err = os.Stat(filepath.Join(work, "ru.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(work, fields[12]+"_ru.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fields[0])
	assert.True(t, os.IsNotExist(err))
}

func TestToolFailureCarriesStderr(t *testing.T) {
	tool := writeTool(t, "echo 'quota exceeded upstream' >&2\nexit 3\n")
	c := New(Options{Tool: tool})

	_, err := c.Translate(context.Background(), batch())
	require.Error(t, err)
	assert.Equal(t, translate.KindTranslationFailed, translate.KindOf(err))
	assert.Contains(t, err.Error(), "quota exceeded upstream")
}

func TestToolWithoutOutput(t *testing.T) {
	tool := writeTool(t, "exit 0\n")
	c := New(Options{Tool: tool})

	_, err := c.Translate(context.Background(), batch())
	require.Error(t, err)
	assert.Equal(t, translate.KindTranslationFailed, translate.KindOf(err))
}

func TestToolTimeout(t *testing.T) {
	tool := writeTool(t, "exec sleep 5\n")
	c := New(Options{Tool: tool, Timeout: 100 * time.Millisecond})

	_, err := c.Translate(context.Background(), batch())
	require.Error(t, err)
	assert.True(t, errors.Is(err, translate.ErrTimeout))
}
