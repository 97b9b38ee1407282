package idgen

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake layout (63 usable bits):
//
//	41 bits millisecond timestamp since epoch | 10 bits worker id | 12 bits sequence
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init sets up the process-wide generator. Only the first call has effect.
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID draws from the process-wide generator, falling back to worker 1
// when Init was never called.
func NextID() int64 {
	_ = Init(1)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted for this millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateTxnSuffix returns the opaque part of a gateway transaction reference.
// Gateways reject re-used references, so each payment attempt gets a new one.
func GenerateTxnSuffix() string {
	return fmt.Sprintf("%d", NextID())
}

// GenerateEntryNo returns a journal entry number, e.g. LED20240115143052_7152391283605504.
func GenerateEntryNo() string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("LED%s_%d", timestamp, id)
}
