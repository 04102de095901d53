package eventlog

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/irongate/internal/logger"
)

var (
	eventsBucket = []byte("events")
	metaBucket   = []byte("meta")
	headKey      = []byte("head")
)

// GenesisHash is the PrevHash of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is an event as persisted in the chain.
type Entry struct {
	Seq uint64 `json:"seq"`
	Event
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// ChainHash computes the SHA-256 chain link over every stored field.
// hash = SHA-256( seq || id || prevHash || time || kind || sessionID || remoteIP || username || detail )
func ChainHash(seq uint64, e Event, prevHash string) string {
	h := sha256.New()
	for _, part := range []string{
		strconv.FormatUint(seq, 10), e.ID, prevHash, e.Time.UTC().Format(time.RFC3339Nano),
		string(e.Kind), e.SessionID, e.RemoteIP, e.Username, e.Detail,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BoltLog is a tamper-evident event chain stored in a BBolt database.
type BoltLog struct {
	db *bbolt.DB
}

// NewBoltLog returns a BoltLog backed by an open database.
func NewBoltLog(db *bbolt.DB) (*BoltLog, error) {
	if db.IsReadOnly() {
		return &BoltLog{db: db}, nil
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(eventsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating event buckets: %w", err)
	}
	return &BoltLog{db: db}, nil
}

// OpenBolt opens a BBolt database at path and returns a BoltLog over it.
func OpenBolt(path string, options *bbolt.Options) (*BoltLog, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	l, err := NewBoltLog(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying BBolt database.
func (l *BoltLog) Close() error {
	return l.db.Close()
}

func (l *BoltLog) Record(e Event) {
	if _, err := l.Append(e); err != nil {
		logger.Warn("event chain append failed", logger.KeyEvent, string(e.Kind), logger.KeyError, err)
	}
}

// Append links e onto the chain and returns the stored entry.
func (l *BoltLog) Append(e Event) (Entry, error) {
	e = Stamp(e)
	var entry Entry
	err := l.db.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket(eventsBucket)
		meta := tx.Bucket(metaBucket)

		prev := GenesisHash
		if head := meta.Get(headKey); head != nil {
			prev = string(head)
		}
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		entry = Entry{Seq: seq, Event: e, PrevHash: prev, Hash: ChainHash(seq, e, prev)}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := events.Put(seqKey(seq), data); err != nil {
			return err
		}
		return meta.Put(headKey, []byte(entry.Hash))
	})
	if err != nil {
		return Entry{}, fmt.Errorf("appending event: %w", err)
	}
	return entry, nil
}

// Entries returns stored entries in chain order. If limit > 0 only the most
// recent limit entries are returned.
func (l *BoltLog) Entries(limit int) ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
