package queue

import (
	"hash/crc32"
	"time"
)

// Record is one durable request as stored in the queue. Seq is assigned
// on append and is the identity the whole pipeline keys on: responses,
// dedup and checkpoint watermarks all reference it.
type Record struct {
	Seq  uint64
	Time int64
	Data []byte
}

func newRecord(seq uint64, data []byte) *Record {
	return &Record{
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
