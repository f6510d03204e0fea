package distributorcfg

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAnalyzers(t *testing.T) {
	got, err := parseAnalyzers("analyzer1:50051, analyzer2:50052")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"analyzer1": "http://analyzer1:50051",
		"analyzer2": "http://analyzer2:50052",
	}, got)
}

func TestParseAnalyzersRejectsMissingColon(t *testing.T) {
	_, err := parseAnalyzers("analyzer1-50051")
	require.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	got, err := parseWeights("analyzer1:0.4,analyzer2:0.3")
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"analyzer1": 0.4, "analyzer2": 0.3}, got)
}

func TestParseWeightsEmpty(t *testing.T) {
	got, err := parseWeights("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseWeightsRejectsMissingColon(t *testing.T) {
	_, err := parseWeights("analyzer1-0.4")
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ANALYZERS", "analyzer1:50051,analyzer2:50052")
	t.Setenv("ANALYZER_TIMEOUT_MS", "500")
	t.Setenv("DEFAULT_WEIGHTS", "analyzer1:1,analyzer2:0")
	t.Setenv("WEIGHT_POLL_SECS", "10")
	t.Setenv("CB_FAILURE_THRESHOLD", "7")
	t.Setenv("CB_RECOVERY_TIMEOUT_SEC", "15.5")
	t.Setenv("CB_HALF_OPEN_SUCC_THRESHOLD", "2")
	t.Setenv("REDIS_URL", "redis://example:6379")

	c := Default()
	require.NoError(t, c.LoadFromEnv())

	require.Equal(t, map[string]string{
		"analyzer1": "http://analyzer1:50051",
		"analyzer2": "http://analyzer2:50052",
	}, c.Analyzers)
	require.Equal(t, 500*time.Millisecond, c.AnalyzerTimeout)
	require.Equal(t, map[string]float64{"analyzer1": 1, "analyzer2": 0}, c.DefaultWeights)
	require.Equal(t, 10*time.Second, c.WeightPollInterval)
	require.Equal(t, 7, c.CBFailureThreshold)
	require.Equal(t, 15500*time.Millisecond, c.CBRecoveryTimeout)
	require.Equal(t, 2, c.CBHalfOpenSuccessThreshold)
	require.Equal(t, "redis://example:6379", c.RedisURL)
}

func TestLoadFromEnvInvalidAnalyzersIsFatal(t *testing.T) {
	t.Setenv("ANALYZERS", "broken-entry")
	c := Default()
	require.Error(t, c.LoadFromEnv())
}

func TestValidateRequiresAnalyzers(t *testing.T) {
	c := Default()
	require.Error(t, c.Validate())

	c.Analyzers = map[string]string{"a": "http://a:1"}
	require.NoError(t, c.Validate())
}

func TestValidateRequiresPositiveBreakerThresholds(t *testing.T) {
	c := Default()
	c.Analyzers = map[string]string{"a": "http://a:1"}
	c.CBFailureThreshold = 0
	require.Error(t, c.Validate())
}

func TestLoadFromFileMergesBeforeEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	err := os.WriteFile(path, []byte("analyzers:\n  analyzer1: http://analyzer1:50051\nweights:\n  analyzer1: 0.9\n"), 0o644)
	require.NoError(t, err)

	c := Default()
	require.NoError(t, c.LoadFromFile(path))
	require.Equal(t, "http://analyzer1:50051", c.Analyzers["analyzer1"])
	require.Equal(t, 0.9, c.DefaultWeights["analyzer1"])

	t.Setenv("DEFAULT_WEIGHTS", "analyzer1:0.1")
	require.NoError(t, c.LoadFromEnv())
	require.Equal(t, 0.1, c.DefaultWeights["analyzer1"])
}
