package telem

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/zigsight/zigsight/pkg"
)

var (
	bucketHistories       = []byte("histories")
	bucketRecommendations = []byte("recommendations")
)

// Persister snapshots the in-memory store into a bbolt file so histories
// survive a daemon restart. The store stays authoritative; the file is only
// written on the cleanup sweep and on shutdown.
type Persister struct {
	db *bolt.DB
}

// persistedDevice is the on-disk shape for one device.
type persistedDevice struct {
	Info      pkg.DeviceInfo       `json:"info"`
	Snapshots []pkg.MetricSnapshot `json:"snapshots"`
}

// NewPersister opens (or creates) the bbolt file at path.
func NewPersister(path string) (*Persister, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketHistories, bucketRecommendations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize persistence buckets: %w", err)
	}

	return &Persister{db: db}, nil
}

// Close closes the underlying database.
func (p *Persister) Close() error {
	return p.db.Close()
}

// Save writes every device's retained history and identity to disk,
// replacing the previous snapshot. Devices no longer in the store are
// removed from disk so a pruned device cannot resurrect on the next Load.
func (p *Persister) Save(store *Store) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHistories)

		live := make(map[string]bool)
		for _, id := range store.Devices() {
			live[id] = true

			dev := persistedDevice{Snapshots: store.History(id)}
			if info, ok := store.DeviceInfo(id); ok {
				dev.Info = info
			}

			data, err := json.Marshal(dev)
			if err != nil {
				return fmt.Errorf("failed to encode history for %s: %w", id, err)
			}
			if err := hb.Put([]byte(id), data); err != nil {
				return err
			}
		}

		c := hb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if !live[string(k)] {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Load replays persisted histories into the store. Entries past the store's
// retention age are dropped on the first cleanup sweep.
func (p *Persister) Load(store *Store) error {
	return p.db.View(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHistories)

		return hb.ForEach(func(k, v []byte) error {
			var dev persistedDevice
			if err := json.Unmarshal(v, &dev); err != nil {
				return fmt.Errorf("failed to decode history for %s: %w", string(k), err)
			}

			if dev.Info.DeviceID != "" {
				store.SetDeviceInfo(dev.Info)
			}
			for _, snap := range dev.Snapshots {
				store.Append(string(k), snap)
			}
			return nil
		})
	})
}

// SaveRecommendations replaces the persisted recommendation history.
func (p *Persister) SaveRecommendations(results []pkg.RecommendationResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation history: %w", err)
	}

	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecommendations).Put([]byte("history"), data)
	})
}

// LoadRecommendations returns the persisted recommendation history, oldest
// first. A missing record yields an empty slice.
func (p *Persister) LoadRecommendations() ([]pkg.RecommendationResult, error) {
	var results []pkg.RecommendationResult

	err := p.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecommendations).Get([]byte("history"))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &results)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode recommendation history: %w", err)
	}
	return results, nil
}
