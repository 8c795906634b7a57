// Package queue is the sequencer's durable input log: an append-only
// sequence of request payloads in fixed binary frames across size-capped
// segment files. Appends assign the global sequence number; replay after
// a crash feeds everything past the checkpoint watermark back through
// the processor in the original order.
package queue

import (
	"encoding/binary"
	"os"

	"meridian/infra/sequence"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

const defaultSegmentSize = 64 << 20

// Queue is single-writer: exactly one goroutine appends. Frame layout:
//
//	[seq:8][time:8][len:4][payload][crc:4]
//
// The CRC covers header and payload.
type Queue struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
	seq      *sequence.Sequencer
}

// Open scans existing segments to find the last assigned sequence and
// continues appending to the highest segment.
func Open(cfg Config) (*Queue, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}

	segIndex := 0
	paths, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		last := paths[len(paths)-1]
		segIndex = segmentIndex(last)
		// Drop any torn frame left by a crash mid-append so new records
		// never land behind unreadable bytes.
		if err := repairSegment(last); err != nil {
			return nil, err
		}
	}

	lastSeq, err := Replay(cfg.Dir, 0, func(*Record) error { return nil })
	if err != nil {
		return nil, err
	}

	seg, err := openSegment(cfg.Dir, segIndex)
	if err != nil {
		return nil, err
	}
	return &Queue{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: segIndex,
		seq:      sequence.New(lastSeq),
	}, nil
}

// Append frames and fsyncs the payload, returning the assigned sequence.
func (q *Queue) Append(payload []byte) (uint64, error) {
	r := newRecord(q.seq.Next(), payload)

	payloadLen := uint32(len(r.Data))
	buf := make([]byte, 8+8+4+payloadLen+4)
	binary.BigEndian.PutUint64(buf[0:8], r.Seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[16:20], payloadLen)
	copy(buf[20:], r.Data)
	binary.BigEndian.PutUint32(buf[20+payloadLen:], checksum(buf[:20+payloadLen]))

	if err := q.current.append(buf); err != nil {
		return 0, err
	}
	if q.current.offset >= q.segSize {
		if err := q.rotate(); err != nil {
			return 0, err
		}
	}
	return r.Seq, nil
}

// LastSeq returns the highest sequence assigned so far.
func (q *Queue) LastSeq() uint64 {
	return q.seq.Current()
}

// Advance moves the sequence floor up to seq. Open only sees segments
// that survived truncation, so after a checkpoint dropped every sealed
// segment the scan undercounts the last assigned sequence; the caller
// feeds the checkpoint watermark back in to cover the gap.
func (q *Queue) Advance(seq uint64) {
	q.seq.Reset(seq)
}

func (q *Queue) rotate() error {
	if err := q.current.close(); err != nil {
		return err
	}
	q.segIndex++
	seg, err := openSegment(q.dir, q.segIndex)
	if err != nil {
		return err
	}
	q.current = seg
	return nil
}

// TruncateBefore drops whole segments whose records all precede or equal
// seq. Called after a checkpoint lands; partial segments are kept.
func (q *Queue) TruncateBefore(seq uint64) error {
	paths, err := listSegments(q.dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if segmentIndex(path) == q.segIndex {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (q *Queue) Close() error {
	return q.current.close()
}
