package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	appErrors "pulsefeed-cache/pkg/errors"
)

// On-disk keys are laid out as "<namespace>-cache-<key>".
const keyPrefix = "-cache-"

// persistEnvelope is the serialized form of an entry on disk.
type persistEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Expires time.Time       `json:"expires"`
	Stored  time.Time       `json:"stored,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

// Persistent is the device-local tier, backed by a bbolt file. It survives
// process restarts and is unbounded: nothing is evicted beyond expiry, which
// the tier chain enforces lazily at read time.
type Persistent struct {
	db        *bolt.DB
	namespace string
	logger    *zap.Logger
}

// NewPersistent opens (or creates) the bbolt file at path. Entries live in
// one bucket per namespace under keys prefixed "<namespace>-cache-".
func NewPersistent(path, namespace string, logger *zap.Logger) (*Persistent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, appErrors.NewTierIO("persistent", "open store file", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
	if err != nil {
		db.Close()
		return nil, appErrors.NewTierIO("persistent", "create bucket", err)
	}

	return &Persistent{
		db:        db,
		namespace: namespace,
		logger:    logger,
	}, nil
}

func (p *Persistent) Name() string { return "persistent" }

// Get returns the entry for key, expired or not.
func (p *Persistent) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := p.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(p.namespace)).Get(p.storageKey(key))
		if raw == nil {
			return nil
		}

		var env persistEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}

		entry = p.fromEnvelope(key, env)
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, appErrors.NewTierIO("persistent", "read entry", err)
	}

	return entry, found, nil
}

// Set serializes the entry and writes it to disk.
func (p *Persistent) Set(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(persistEnvelope{
		Data:    entry.Value,
		Expires: entry.ExpiresAt,
		Stored:  entry.StoredAt,
		Kind:    entry.Kind,
	})
	if err != nil {
		return appErrors.NewTierIO("persistent", "serialize entry", err)
	}

	err = p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(p.namespace)).Put(p.storageKey(entry.Key), raw)
	})
	if err != nil {
		return appErrors.NewTierIO("persistent", "write entry", err)
	}

	return nil
}

// Delete removes the entry for key.
func (p *Persistent) Delete(ctx context.Context, key string) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(p.namespace)).Delete(p.storageKey(key))
	})
	if err != nil {
		return appErrors.NewTierIO("persistent", "delete entry", err)
	}
	return nil
}

// DeleteFunc removes every entry the predicate matches.
func (p *Persistent) DeleteFunc(ctx context.Context, pred func(Entry) bool) (int, error) {
	removed := 0

	err := p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(p.namespace))

		// Collect first; deleting while cursoring invalidates the cursor.
		var doomed [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			entry, ok := p.decode(k, v)
			if !ok {
				continue
			}
			if pred(entry) {
				doomed = append(doomed, bytes.Clone(k))
			}
		}

		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, appErrors.NewTierIO("persistent", "delete entries", err)
	}

	return removed, nil
}

// Entries calls fn for each stored entry until fn returns false.
func (p *Persistent) Entries(ctx context.Context, fn func(Entry) bool) error {
	err := p.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(p.namespace)).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			entry, ok := p.decode(k, v)
			if !ok {
				continue
			}
			if !fn(entry) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return appErrors.NewTierIO("persistent", "iterate entries", err)
	}
	return nil
}

// Close closes the underlying bbolt file.
func (p *Persistent) Close() error {
	return p.db.Close()
}

func (p *Persistent) storageKey(key string) []byte {
	return []byte(p.namespace + keyPrefix + key)
}

func (p *Persistent) fromEnvelope(key string, env persistEnvelope) Entry {
	stored := env.Stored
	if stored.IsZero() {
		stored = env.Expires
	}
	return Entry{
		Key:       key,
		Value:     []byte(env.Data),
		Kind:      env.Kind,
		StoredAt:  stored,
		ExpiresAt: env.Expires,
	}
}

// decode turns a raw bucket pair back into an Entry. Undecodable rows are
// skipped rather than failing the whole scan.
func (p *Persistent) decode(k, v []byte) (Entry, bool) {
	key := strings.TrimPrefix(string(k), p.namespace+keyPrefix)

	var env persistEnvelope
	if err := json.Unmarshal(v, &env); err != nil {
		p.logger.Warn("Skipping undecodable persistent entry",
			zap.String("key", key),
			zap.Error(err),
		)
		return Entry{}, false
	}

	return p.fromEnvelope(key, env), true
}
