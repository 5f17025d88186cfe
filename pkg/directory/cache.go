package directory

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Cache is the on-disk read-through cache for provider API responses,
// keyed by (profile, endpoint). One bbolt bucket per profile.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached response body for (profile, endpoint), with found
// reporting whether one exists.
func (c *Cache) Get(profile, endpoint string) (data []byte, found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(profile))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(endpoint)); v != nil {
			data = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read directory cache: %w", err)
	}
	return data, found, nil
}

// Put stores a response body for (profile, endpoint).
func (c *Cache) Put(profile, endpoint string, data []byte) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(profile))
		if err != nil {
			return err
		}
		return b.Put([]byte(endpoint), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write directory cache: %w", err)
	}
	return nil
}

// ClearProfile drops every cached endpoint for a profile.
func (c *Cache) ClearProfile(profile string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(profile)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(profile))
	})
	if err != nil {
		return fmt.Errorf("failed to clear directory cache for %s: %w", profile, err)
	}
	return nil
}
