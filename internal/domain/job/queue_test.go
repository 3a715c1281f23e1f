package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueueDefinition_WithDefaults verifies separate retention defaults for
// completed and failed jobs, with failed retained far longer.
func TestQueueDefinition_WithDefaults(t *testing.T) {
	def := QueueDefinition{Name: "embedding"}.WithDefaults()

	assert.Equal(t, DefaultRetries, def.DefaultRetries)
	assert.Equal(t, BackoffExponential, def.Backoff.Kind)
	assert.Equal(t, DefaultBackoffBase, def.Backoff.Base)
	assert.Equal(t, DefaultBackoffCap, def.Backoff.Cap)
	assert.Equal(t, DefaultCompletedMaxAge, def.Retention.Completed.MaxAge)
	assert.Equal(t, DefaultFailedMaxAge, def.Retention.Failed.MaxAge)
	assert.Greater(t, def.Retention.Failed.MaxAge, def.Retention.Completed.MaxAge)
	assert.Greater(t, def.Retention.Failed.MaxCount, def.Retention.Completed.MaxCount)
}

// TestQueueDefinition_WithDefaults_ExplicitBackoffKept verifies an explicitly
// configured policy survives defaulting: a zero base means no delay between
// attempts and a zero cap means uncapped, neither is rewritten.
func TestQueueDefinition_WithDefaults_ExplicitBackoffKept(t *testing.T) {
	immediate := QueueDefinition{
		Name:    "notification",
		Backoff: BackoffPolicy{Kind: BackoffFixed, Base: 0},
	}.WithDefaults()
	assert.Equal(t, BackoffFixed, immediate.Backoff.Kind)
	assert.Equal(t, time.Duration(0), immediate.Backoff.Base)
	assert.Equal(t, time.Duration(0), immediate.Backoff.Delay(3))

	uncapped := QueueDefinition{
		Name:    "sync",
		Backoff: BackoffPolicy{Kind: BackoffExponential, Base: time.Second},
	}.WithDefaults()
	assert.Equal(t, time.Duration(0), uncapped.Backoff.Cap)
}

// TestQueueDefinition_Validate verifies name, retries and backoff checks.
func TestQueueDefinition_Validate(t *testing.T) {
	valid := QueueDefinition{Name: "sync"}.WithDefaults()
	assert.NoError(t, valid.Validate())

	assert.Error(t, QueueDefinition{}.Validate())
	assert.Error(t, QueueDefinition{Name: "x"}.Validate(), "zero retries")
	assert.Error(t, QueueDefinition{
		Name:           "x",
		DefaultRetries: 1,
		Backoff:        BackoffPolicy{Kind: "bogus"},
	}.Validate())
}

// TestDefaultQueueDefinitions verifies the built-in queue set covers every
// job type with the expected tuning.
func TestDefaultQueueDefinitions(t *testing.T) {
	defs := DefaultQueueDefinitions()
	byName := make(map[string]QueueDefinition, len(defs))
	for _, def := range defs {
		require.NoError(t, def.Validate())
		byName[def.Name] = def
	}

	require.Len(t, byName, 4)
	assert.Equal(t, 5, byName["transcription"].DefaultRetries)
	assert.Equal(t, BackoffFixed, byName["notification"].Backoff.Kind)
	assert.Equal(t, 10, byName["notification"].DefaultPriority, "notifications outrank background work")
	assert.Equal(t, BackoffLinear, byName["sync"].Backoff.Kind)
}

// TestLoadQueueDefinitions verifies YAML overrides parse with defaults
// applied and duplicates rejected.
func TestLoadQueueDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queues:
  - name: embedding
    default_retries: 6
    backoff:
      kind: exponential
      base: 1s
      cap: 30s
  - name: notification
    default_priority: 20
`), 0o600))

	defs, err := LoadQueueDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, 6, defs[0].DefaultRetries)
	assert.Equal(t, time.Second, defs[0].Backoff.Base)
	assert.Equal(t, 30*time.Second, defs[0].Backoff.Cap)

	// Unset fields pick up defaults.
	assert.Equal(t, DefaultRetries, defs[1].DefaultRetries)
	assert.Equal(t, DefaultFailedMaxAge, defs[1].Retention.Failed.MaxAge)

	require.NoError(t, os.WriteFile(path, []byte(`
queues:
  - name: embedding
  - name: embedding
`), 0o600))
	_, err = LoadQueueDefinitions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
