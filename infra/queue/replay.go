package queue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay walks every segment in order, invoking fn for each record with
// Seq > after. Sequence numbers must be strictly increasing across the
// whole log. A torn frame at the very tail of the last segment is the
// expected crash artifact and ends replay cleanly; corruption anywhere
// else is an error.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	paths, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	var prev uint64
	lastSeq = after
	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}
		final := i == len(paths)-1

		for {
			rec, err := readRecord(f)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				if final && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errBadChecksum)) {
					break
				}
				f.Close()
				return lastSeq, fmt.Errorf("queue replay %s: %w", path, err)
			}

			if rec.Seq <= prev {
				f.Close()
				return lastSeq, fmt.Errorf("queue replay %s: non-monotonic seq %d after %d", path, rec.Seq, prev)
			}
			prev = rec.Seq
			if rec.Seq <= after {
				continue
			}
			lastSeq = rec.Seq

			if err := fn(rec); err != nil {
				f.Close()
				return lastSeq, err
			}
		}
		f.Close()
	}
	return lastSeq, nil
}

var errBadChecksum = errors.New("checksum mismatch")

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, 20)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	seq := binary.BigEndian.Uint64(header[0:8])
	ts := binary.BigEndian.Uint64(header[8:16])
	payloadLen := binary.BigEndian.Uint32(header[16:20])

	body := make([]byte, int(payloadLen)+4)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	payload := body[:payloadLen]
	crc := binary.BigEndian.Uint32(body[payloadLen:])

	if checksum(append(header, payload...)) != crc {
		return nil, errBadChecksum
	}
	return &Record{Seq: seq, Time: int64(ts), Data: payload}, nil
}

// repairSegment truncates a segment to its last intact frame.
func repairSegment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	var valid int64
	for {
		rec, err := readRecord(f)
		if err != nil {
			break
		}
		valid += int64(20 + len(rec.Data) + 4)
	}
	info, statErr := f.Stat()
	f.Close()
	if statErr != nil {
		return statErr
	}
	if valid < info.Size() {
		return os.Truncate(path, valid)
	}
	return nil
}

// maxSeqInSegment scans one segment for its highest sequence. Used only
// by checkpoint truncation, so payloads are skipped, not validated.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	header := make([]byte, 20)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return max, nil
			}
			return max, err
		}
		seq := binary.BigEndian.Uint64(header[0:8])
		if seq > max {
			max = seq
		}
		payloadLen := binary.BigEndian.Uint32(header[16:20])
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
