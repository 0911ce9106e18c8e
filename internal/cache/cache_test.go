package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("search", "30401", "01-01-2025", "01-07-2025")
	b := Key("search", "30401", "01-01-2025", "01-07-2025")
	c := Key("search", "30401", "01-01-2025", "01-08-2025")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, keyPrefix))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)

	value := []byte("rows")
	require.NoError(t, c.Set("k", value, 0))
	value[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "rows", string(got))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewDiskCache(dir, time.Hour)

	_, ok := c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte(`[{"caseNo":"1"}]`), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.JSONEq(t, `[{"caseNo":"1"}]`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")

	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("k", []byte("v"), 0))

	now = now.Add(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	_, err := os.Stat(c.path("k"))
	assert.True(t, os.IsNotExist(err), "expired entry should be removed")
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	require.NoError(t, os.WriteFile(c.path("k"), []byte("not json"), 0o644))

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	memory := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayered(memory, disk)

	require.NoError(t, disk.Set("k", []byte("v"), 0))
	_, ok := memory.Get("k")
	require.False(t, ok)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	got, ok = memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
}

func TestLayeredCache_SetDeleteClear(t *testing.T) {
	c := NewLayeredCache(time.Minute, t.TempDir(), time.Hour)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, ok := c.memory.Get("k")
	assert.True(t, ok)
	_, ok = c.disk.Get("k")
	assert.True(t, ok)

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Clear())
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.NoError(t, c.Delete("k"))
	assert.NoError(t, c.Clear())
}
