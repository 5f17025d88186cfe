package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no state document exists for a site.
var ErrNotFound = errors.New("no such migration")

// filePrefix names the state documents so they are recognizable next to
// other files in the data directory.
const filePrefix = "wpshift-"

// Store provides durable CRUD over per-site migration state documents.
// One JSON document per site, human-readable, safe for an operator to
// inspect in an emergency.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the state directory under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the state document path for a site.
func (s *Store) Path(site string) string {
	return filepath.Join(s.dir, filePrefix+site+".json")
}

// KnownHostsPath returns the per-site known-hosts file used by the remote
// executor, so host-key trust is scoped to one migration.
func (s *Store) KnownHostsPath(site string) string {
	return filepath.Join(s.dir, filePrefix+site+".known_hosts")
}

// Init creates a fresh state document for a site, overwriting any prior
// one. Callers are expected to have confirmed the overwrite with the
// operator first.
func (s *Store) Init(site, sourceProfile, destProfile string) (*Migration, error) {
	now := time.Now().UTC()
	m := &Migration{
		Site:           site,
		SourceProfile:  sourceProfile,
		DestProfile:    destProfile,
		Started:        now,
		LastUpdated:    now,
		CompletedSteps: []string{},
	}
	if err := s.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Exists reports whether a state document exists for a site.
func (s *Store) Exists(site string) bool {
	_, err := os.Stat(s.Path(site))
	return err == nil
}

// Load reads the state document for a site. A missing document is
// ErrNotFound; callers surface it as fatal.
func (s *Store) Load(site string) (*Migration, error) {
	data, err := os.ReadFile(s.Path(site))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s (start one with `wpshift migrate %s`)", ErrNotFound, site, site)
		}
		return nil, fmt.Errorf("failed to read state for %s: %w", site, err)
	}
	var m Migration
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt state document for %s: %w", site, err)
	}
	return &m, nil
}

// Save persists the document atomically: write to a temp file in the same
// directory, then rename over the target, so a crash never leaves a
// half-written document behind.
func (s *Store) Save(m *Migration) error {
	m.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", m.Site, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, filePrefix+m.Site+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state for %s: %w", m.Site, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state for %s: %w", m.Site, err)
	}
	if err := os.Rename(tmpName, s.Path(m.Site)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state for %s: %w", m.Site, err)
	}
	return nil
}

// Clear deletes a site's state document and its per-site known-hosts file.
func (s *Store) Clear(site string) error {
	if !s.Exists(site) {
		return fmt.Errorf("%w for %s", ErrNotFound, site)
	}
	if err := os.Remove(s.Path(site)); err != nil {
		return fmt.Errorf("failed to remove state for %s: %w", site, err)
	}
	// Host-key trust was scoped to this migration; drop it with the state.
	if err := os.Remove(s.KnownHostsPath(site)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove known-hosts for %s: %w", site, err)
	}
	return nil
}

// Deduplicate repairs a document whose completed_steps has duplicate
// entries and reports how many entries were removed.
func (s *Store) Deduplicate(site string) (int, error) {
	m, err := s.Load(site)
	if err != nil {
		return 0, err
	}
	removed := m.dedupeSteps()
	if removed == 0 {
		return 0, nil
	}
	return removed, s.Save(m)
}

// List loads every state document in the store, sorted by site.
func (s *Store) List() ([]*Migration, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}
	var out []*Migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		site := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		m, err := s.Load(site)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out, nil
}
