package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveOutcomeClassifies(t *testing.T) {
	ObserveOutcome("test-ok", 0.1, 2, 0)
	ObserveOutcome("test-partial", 0.1, 1, 2)
	ObserveOutcome("test-fail", 0.1, 0, 3)

	require.Equal(t, 1.0, testutil.ToFloat64(ProviderRequests.WithLabelValues("test-ok", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(ProviderRequests.WithLabelValues("test-partial", OutcomePartial)))
	require.Equal(t, 1.0, testutil.ToFloat64(ProviderRequests.WithLabelValues("test-fail", OutcomeFailure)))
	require.Equal(t, 2.0, testutil.ToFloat64(KeyFailures.WithLabelValues("test-partial")))
	require.Equal(t, 3.0, testutil.ToFloat64(KeyFailures.WithLabelValues("test-fail")))
}

func TestWriteTextfile(t *testing.T) {
	Fallbacks.Inc()
	path := filepath.Join(t.TempDir(), "modtranslate.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "modtranslate_fallbacks_total"))
}
