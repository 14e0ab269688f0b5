// Package sitestore persists sites, site order, settings and per-site
// stats in a single bbolt database.
package sitestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/haltgate/haltgate/internal/gate/common/clock"
	"github.com/haltgate/haltgate/internal/gate/domain"
)

var (
	bucketSites = []byte("sites")
	bucketStats = []byte("stats")
	bucketMeta  = []byte("meta")
	keyOrder    = []byte("order")
	keySettings = []byte("settings")
)

// ErrNotFound is returned when a site id has no stored entry.
var ErrNotFound = errors.New("site not found")

// Store is the bbolt-backed persistence layer. Site order is stored
// explicitly because first-match-wins across sites depends on it.
type Store struct {
	db  *bbolt.DB
	clk clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string, clk clock.Clock) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSites, bucketStats, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, clk: clk}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Create assigns a fresh id and creation time, persists the site and
// appends it to the order list.
func (s *Store) Create(site domain.Site) (domain.Site, error) {
	site.ID = uuid.NewString()
	site.CreatedAt = s.clk.Now()
	if err := site.Validate(); err != nil {
		return domain.Site{}, err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := putSite(tx, site); err != nil {
			return err
		}
		order := readOrder(tx)
		order = append(order, site.ID)
		return writeOrder(tx, order)
	})
	if err != nil {
		return domain.Site{}, err
	}
	return site, nil
}

// Get returns the site with the given id.
func (s *Store) Get(id string) (domain.Site, error) {
	var site domain.Site
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSites).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &site)
	})
	return site, err
}

// Patch applies a partial update to a stored site. The id and creation
// time are immutable; mutations to them inside fn are discarded.
func (s *Store) Patch(id string, fn func(*domain.Site)) (domain.Site, error) {
	var site domain.Site
	err := s.db.Update(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSites).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(v, &site); err != nil {
			return err
		}
		createdAt := site.CreatedAt
		fn(&site)
		site.ID = id
		site.CreatedAt = createdAt
		if err := site.Validate(); err != nil {
			return err
		}
		return putSite(tx, site)
	})
	if err != nil {
		return domain.Site{}, err
	}
	return site, nil
}

// List returns all sites in their configured order. Sites missing
// from the order list (never expected, but tolerated) are appended in
// id order.
func (s *Store) List() ([]domain.Site, error) {
	var sites []domain.Site
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSites)
		all := make(map[string]domain.Site)
		if err := b.ForEach(func(k, v []byte) error {
			var site domain.Site
			if err := json.Unmarshal(v, &site); err != nil {
				return fmt.Errorf("decode site %s: %w", k, err)
			}
			all[string(k)] = site
			return nil
		}); err != nil {
			return err
		}

		for _, id := range readOrder(tx) {
			if site, ok := all[id]; ok {
				sites = append(sites, site)
				delete(all, id)
			}
		}
		rest := make([]string, 0, len(all))
		for id := range all {
			rest = append(rest, id)
		}
		sort.Strings(rest)
		for _, id := range rest {
			sites = append(sites, all[id])
		}
		return nil
	})
	return sites, err
}

// SetOrder replaces the site order. Unknown ids are rejected.
func (s *Store) SetOrder(ids []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSites)
		for _, id := range ids {
			if b.Get([]byte(id)) == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
		}
		return writeOrder(tx, ids)
	})
}

// Settings returns the stored settings, or defaults when absent.
func (s *Store) Settings() (domain.Settings, error) {
	settings := domain.DefaultSettings()
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keySettings)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &settings)
	})
	return settings, err
}

// PutSettings persists the settings.
func (s *Store) PutSettings(settings domain.Settings) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		v, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySettings, v)
	})
}

// Stats returns the counters for a site; zero counters when absent.
func (s *Store) Stats(id string) (domain.SiteStats, error) {
	stats := domain.SiteStats{SiteID: id}
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketStats).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &stats)
	})
	return stats, err
}

// BumpStats adds to a site's counters. Unknown sites accumulate too;
// stats outlive rule edits and the caller already validated the id.
func (s *Store) BumpStats(id string, blockedDelta, unlockDelta uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStats)
		stats := domain.SiteStats{SiteID: id}
		if v := b.Get([]byte(id)); v != nil {
			if err := json.Unmarshal(v, &stats); err != nil {
				return err
			}
		}
		stats.BlockedCount += blockedDelta
		stats.UnlockCount += unlockDelta
		if blockedDelta > 0 {
			stats.LastBlockedAt = s.clk.Now()
		}
		v, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), v)
	})
}

func putSite(tx *bbolt.Tx, site domain.Site) error {
	v, err := json.Marshal(site)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSites).Put([]byte(site.ID), v)
}

func readOrder(tx *bbolt.Tx) []string {
	var order []string
	if v := tx.Bucket(bucketMeta).Get(keyOrder); v != nil {
		_ = json.Unmarshal(v, &order)
	}
	return order
}

func writeOrder(tx *bbolt.Tx, ids []string) error {
	v, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(keyOrder, v)
}
