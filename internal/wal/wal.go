// Package wal implements the durable journal (spec.md §4.8): every
// transaction boundary and mutation is appended as a record before the
// transaction manager reports success, so a crash can be recovered from
// by replaying the log against a fresh graph store. Grounded on
// internal/jsonl's append-only, replay-by-scanning idiom, made
// binary-safe and fsync-durable via go.etcd.io/bbolt, with gjson/sjson
// payload encoding, gofrs/flock guarding the data directory against a
// second process, and cenkalti/backoff/v4 retrying Sync the way
// internal/storage/dolt's withRetry retries transient I/O failures.
package wal

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	bolt "go.etcd.io/bbolt"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/mewlog"
	"github.com/mewdb/mew/internal/obs"
)

var logger = mewlog.For("wal")

var recordsBucket = []byte("wal")

// Writer is the journal's append/sync surface, satisfying internal/txn's
// WAL interface.
type Writer struct {
	db   *bolt.DB
	lock *flock.Flock
	lsn  uint64
	path string

	// Metrics, when non-nil, records every Sync call's duration.
	Metrics *obs.Metrics
}

// Open opens (creating if absent) the journal file at path, acquiring an
// exclusive advisory lock so a second engine instance can't interleave
// writes into the same file.
func Open(path string) (*Writer, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, mewerr.Wrap(mewerr.IoError, err, "locking journal %q", path)
	}
	if !locked {
		return nil, mewerr.New(mewerr.IoError, "journal %q is locked by another process", path)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		_ = lock.Unlock()
		return nil, mewerr.Wrap(mewerr.IoError, err, "opening journal %q", path)
	}

	lastLSN := uint64(0)
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		if k, _ := b.Cursor().Last(); k != nil {
			lastLSN = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, mewerr.Wrap(mewerr.IoError, err, "initializing journal bucket")
	}

	return &Writer{db: db, lock: lock, lsn: lastLSN, path: path}, nil
}

// Append writes one record after the next LSN and returns it. The
// payload is a concrete type from this package (SpawnPayload,
// LinkPayload, ...), a string (savepoint name), or nil.
func (w *Writer) Append(txnID string, kind string, payload any) (uint64, error) {
	body, err := encodeRecord(txnID, kind, payload)
	if err != nil {
		return 0, mewerr.Wrap(mewerr.IoError, err, "encoding journal record")
	}
	w.lsn++
	lsn := w.lsn
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, lsn)

	err = w.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(key, []byte(body))
	})
	if err != nil {
		w.lsn--
		return 0, mewerr.Wrap(mewerr.IoError, err, "appending journal record")
	}
	return lsn, nil
}

// Sync forces the journal file to stable storage, retrying transient
// failures with exponential backoff (the withRetry idiom).
func (w *Writer) Sync() error {
	start := time.Now()
	op := func() error { return w.db.Sync() }
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(op, bo)
	if w.Metrics != nil {
		w.Metrics.WALSyncSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return mewerr.Wrap(mewerr.IoError, err, "syncing journal %q", w.path)
	}
	logger.Debug("sync", "path", w.path, "elapsed", time.Since(start))
	return nil
}

// Close releases the journal file and its lock.
func (w *Writer) Close() error {
	err := w.db.Close()
	_ = w.lock.Unlock()
	return err
}

// Record is one decoded journal entry, in LSN order.
type Record struct {
	LSN     uint64
	TxnID   string
	Kind    string
	Payload gjson.Result
}

// Records returns every record in the journal in ascending LSN order.
func (w *Writer) Records() ([]Record, error) {
	var out []Record
	err := w.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			parsed := gjson.ParseBytes(v)
			out = append(out, Record{
				LSN:     binary.BigEndian.Uint64(k),
				TxnID:   parsed.Get("txn").String(),
				Kind:    parsed.Get("kind").String(),
				Payload: parsed.Get("payload"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, mewerr.Wrap(mewerr.IoError, err, "scanning journal %q", w.path)
	}
	return out, nil
}

// truncateThrough deletes every record at or before lsn, used after a
// checkpoint archives them (spec.md §4.8).
func (w *Writer) truncateThrough(lsn uint64) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if binary.BigEndian.Uint64(k) > lsn {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeRecord(txnID, kind string, payload any) (string, error) {
	json := `{}`
	var err error
	json, err = sjson.Set(json, "txn", txnID)
	if err != nil {
		return "", err
	}
	json, err = sjson.Set(json, "kind", kind)
	if err != nil {
		return "", err
	}
	if payload == nil {
		return sjson.Set(json, "payload", map[string]any{})
	}
	switch p := payload.(type) {
	case string:
		return sjson.Set(json, "payload.name", p)
	case SpawnPayload:
		return encodeSpawn(json, p)
	case LinkPayload:
		return encodeLink(json, p)
	case UnlinkPayload:
		return sjson.Set(json, "payload.old_edge_id", p.OldEdgeID)
	case KillNodePayload:
		json, err = sjson.Set(json, "payload.old_node_id", p.OldNodeID)
		if err != nil {
			return "", err
		}
		return sjson.Set(json, "payload.cascade", p.Cascade)
	case SetPayload:
		return encodeSet(json, p)
	default:
		return "", fmt.Errorf("wal: unsupported payload type %T", payload)
	}
}
