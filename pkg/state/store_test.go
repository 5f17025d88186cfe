package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestInitAndLoad(t *testing.T) {
	s := newTestStore(t)

	m, err := s.Init("example.com", "acme-prod", "acme-new")
	require.NoError(t, err)
	assert.Equal(t, "example.com", m.Site)
	assert.Empty(t, m.CompletedSteps)

	got, err := s.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, "acme-prod", got.SourceProfile)
	assert.Equal(t, "acme-new", got.DestProfile)
	assert.False(t, got.Started.IsZero())
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("nope.com")
	require.ErrorIs(t, err, ErrNotFound)
	// Precondition errors name the fix, not just the symptom.
	assert.Contains(t, err.Error(), "wpshift migrate nope.com")
}

func TestMarkStepCompleteIdempotent(t *testing.T) {
	m := &Migration{}
	m.MarkStepComplete("2.2")
	m.MarkStepComplete("2.2")
	m.MarkStepComplete("1")
	m.MarkStepComplete("2.2")

	assert.Equal(t, []string{"2.2", "1"}, m.CompletedSteps)
	assert.True(t, m.IsStepComplete("2.2"))
	assert.False(t, m.IsStepComplete("2.5"))
}

func TestSaveAtomicNoTempLeftover(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Init("example.com", "src", "dst")
	require.NoError(t, err)

	m.Facts.SourceIP = "203.0.113.10"
	require.NoError(t, s.Save(m))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}

	got, err := s.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", got.Facts.SourceIP)
}

func TestFactsAreStringsOnDisk(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.Facts.SourceSiteID = "1042"
	require.NoError(t, s.Save(m))

	raw, err := os.ReadFile(s.Path("example.com"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	data, ok := doc["data"].(map[string]any)
	require.True(t, ok)
	_, ok = data["source_site_id"].(string)
	assert.True(t, ok, "numeric identifiers must persist as strings")
}

func TestClearRemovesStateAndKnownHosts(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Init("example.com", "src", "dst")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.KnownHostsPath("example.com"), []byte("203.0.113.10 ssh-ed25519 AAAA\n"), 0o644))

	require.NoError(t, s.Clear("example.com"))
	assert.False(t, s.Exists("example.com"))
	_, err = os.Stat(s.KnownHostsPath("example.com"))
	assert.True(t, os.IsNotExist(err))
}

func TestClearMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Clear("nope.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeduplicate(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.CompletedSteps = []string{"1", "2.2", "1", "2.2", "3.1"}
	require.NoError(t, s.Save(m))

	removed, err := s.Deduplicate("example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := s.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2.2", "3.1"}, got.CompletedSteps)

	removed, err = s.Deduplicate("example.com")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Init("b.com", "src", "dst")
	require.NoError(t, err)
	_, err = s.Init("a.com", "src", "dst")
	require.NoError(t, err)

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("x"), 0o644))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.com", got[0].Site)
	assert.Equal(t, "b.com", got[1].Site)
}

func TestInitOverwritesPriorDocument(t *testing.T) {
	s := newTestStore(t)
	m, err := s.Init("example.com", "src", "dst")
	require.NoError(t, err)
	m.MarkStepComplete("1")
	require.NoError(t, s.Save(m))

	fresh, err := s.Init("example.com", "src2", "dst2")
	require.NoError(t, err)
	assert.Empty(t, fresh.CompletedSteps)

	got, err := s.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, "src2", got.SourceProfile)
	assert.Empty(t, got.CompletedSteps)
}
