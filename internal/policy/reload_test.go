package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applied struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (a *applied) add(c *Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfgs = append(a.cfgs, c)
}

func (a *applied) last() (*Config, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.cfgs) == 0 {
		return nil, 0
	}
	return a.cfgs[len(a.cfgs)-1], len(a.cfgs)
}

func startReloader(t *testing.T, path string, got *applied) {
	t.Helper()
	r, err := NewReloader(path, 20*time.Millisecond, got.add)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestReloader_AppliesValidChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0o644))

	var got applied
	startReloader(t, path, &got)

	updated := strings.Replace(testPolicyYAML, "margin_hit_pp_lt: 2.0", "margin_hit_pp_lt: 4.5", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		cfg, _ := got.last()
		return cfg != nil && cfg.AutoExecute.MarginPP == 4.5
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReloader_KeepsPolicyOnInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0o644))

	var got applied
	startReloader(t, path, &got)

	require.NoError(t, os.WriteFile(path, []byte("auto_execute_if: {}\n"), 0o644))
	assert.Never(t, func() bool {
		_, n := got.last()
		return n > 0
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestReloader_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0o644))

	var got applied
	startReloader(t, path, &got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(testPolicyYAML), 0o644))
	assert.Never(t, func() bool {
		_, n := got.last()
		return n > 0
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestNewReloader_MissingDir(t *testing.T) {
	t.Parallel()
	_, err := NewReloader(filepath.Join(t.TempDir(), "nope", "policy.yaml"), 0, func(*Config) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy: watch")
}
