// Package outbox is the durable response store. Every applied request
// writes its encoded response here keyed by sequence number before the
// response leaves the process, which gives the pipeline two guarantees:
// a replayed request returns its stored response instead of reprocessing,
// and the broadcaster can resume publishing after a crash without losing
// or duplicating anything downstream that deduplicates by sequence.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Record is one stored response with its publish bookkeeping.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeValue(state State, retries uint32, lastAttempt int64, payload []byte) []byte {
	buf := make([]byte, 1+4+8+len(payload))
	buf[0] = byte(state)
	binary.BigEndian.PutUint32(buf[1:5], retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(lastAttempt))
	copy(buf[13:], payload)
	return buf
}

func decodeValue(seq uint64, b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("outbox: short record value")
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[13:]...),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // responses must survive a crash
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stores a freshly produced response in NEW state.
func (o *Outbox) Put(seq uint64, payload []byte) error {
	return o.db.Set(keyFor(seq), encodeValue(StateNew, 0, 0, payload), pebble.Sync)
}

// Get returns the stored response for a sequence, reporting whether one
// exists. This is the idempotency check on the request path.
func (o *Outbox) Get(seq uint64) (Record, bool, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	defer closer.Close()

	rec, err := decodeValue(seq, val)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// MarkSent records a publish attempt before it goes out.
func (o *Outbox) MarkSent(seq uint64, retries uint32) error {
	return o.transition(seq, StateSent, retries)
}

// MarkAcked records broker acknowledgement.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, StateAcked, 0)
}

func (o *Outbox) transition(seq uint64, state State, retries uint32) error {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return err
	}
	rec, err := decodeValue(seq, val)
	closer.Close()
	if err != nil {
		return err
	}
	return o.db.Set(keyFor(seq),
		encodeValue(state, retries, time.Now().UnixNano(), rec.Payload), pebble.Sync)
}

// ScanPending iterates, in sequence order, every record not yet acked.
// SENT records are included: after a crash the broker may never have
// seen them, and downstream dedup makes a resend harmless.
func (o *Outbox) ScanPending(fn func(rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeValue(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PruneAcked deletes acked records with Seq <= seq. Called after a
// checkpoint covers them; unacked records are always kept.
func (o *Outbox) PruneAcked(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: keyFor(seq + 1),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeValue(0, iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateAcked {
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

const keyPrefix = "resp/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(b[len(keyPrefix):]), "%d", &seq); err != nil {
		return 0, err
	}
	return seq, nil
}
