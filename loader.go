package esmshard

import (
	"fmt"
	"sort"

	"github.com/yargevad/filepathx"

	"github.com/openbio/esmshard/internal/metrics"
)

// shardCursor holds the file-cycling and batch-geometry state shared by both
// loaders. Each consumer process owns one cursor; there is no cross-rank
// state.
type shardCursor struct {
	files          []string
	nextShard      int
	pos            int
	batchSize      int
	localBatchSize int
	rank           int
	worldSize      int
}

func newShardCursor(pattern string, batchSize, rank,
	worldSize int) (*shardCursor, error) {
	if worldSize <= 0 {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"world size must be positive, got %d", worldSize)}
	}
	if rank < 0 || rank >= worldSize {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"rank %d out of range for world size %d", rank, worldSize)}
	}
	if batchSize%worldSize != 0 {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"batch size %d is not divisible by world size %d",
			batchSize, worldSize)}
	}
	files, err := filepathx.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"no shard files match %s", pattern)}
	}
	// Shard filenames carry zero-padded indexes, so the lexicographic sort
	// is also the numeric order.
	sort.Strings(files)
	return &shardCursor{
		files:          files,
		batchSize:      batchSize,
		localBatchSize: batchSize / worldSize,
		rank:           rank,
		worldSize:      worldSize,
	}, nil
}

// rankSlice returns this rank's view of the current buffer and advances the
// cursor by one global batch. The slice aliases tokens and is valid until the
// next shard load. A short final buffer yields a short slice.
func (sc *shardCursor) rankSlice(tokens Tokens) Tokens {
	begin := sc.pos + sc.rank*sc.localBatchSize
	if begin > len(tokens) {
		begin = len(tokens)
	}
	end := begin + sc.localBatchSize
	if end > len(tokens) {
		end = len(tokens)
	}
	sc.pos += sc.batchSize
	return tokens[begin:end]
}

// DataLoader cycles through shard files yielding contiguous per-rank token
// windows. It never carries tokens across shard boundaries: the tail of a
// shard past the last full global batch is dropped. Training streams that
// cannot afford that use PaddedDataLoader instead.
type DataLoader struct {
	cursor *shardCursor
	tokens Tokens
}

// NewDataLoader discovers shard files with the glob pattern and positions the
// loader at the start of the first shard. batchSize is the global token count
// per step and must divide evenly across worldSize consumers.
func NewDataLoader(pattern string, batchSize, rank,
	worldSize int) (*DataLoader, error) {
	cursor, err := newShardCursor(pattern, batchSize, rank, worldSize)
	if err != nil {
		return nil, err
	}
	loader := &DataLoader{cursor: cursor}
	if err := loader.Reset(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Reset rewinds to shard zero and loads it.
func (dl *DataLoader) Reset() error {
	dl.cursor.nextShard = 0
	return dl.Advance()
}

// Advance loads the next shard file, wrapping cyclically over the file list,
// and rewinds the in-shard cursor.
func (dl *DataLoader) Advance() error {
	sc := dl.cursor
	sc.pos = 0
	tokens, err := ReadShard(sc.files[sc.nextShard])
	if err != nil {
		return err
	}
	dl.tokens = tokens
	sc.nextShard = (sc.nextShard + 1) % len(sc.files)
	return nil
}

// NextBatch returns this rank's localBatchSize-token slice of the current
// shard and advances the global position. When the next global batch would
// overrun the shard, the following shard is loaded eagerly.
func (dl *DataLoader) NextBatch() (Tokens, error) {
	batch := dl.cursor.rankSlice(dl.tokens)
	if dl.cursor.pos+dl.cursor.batchSize >= len(dl.tokens) {
		if err := dl.Advance(); err != nil {
			return nil, err
		}
	}
	metrics.BatchesServed.Inc()
	return batch, nil
}

// LocalBatchSize is the per-rank token count of every batch.
func (dl *DataLoader) LocalBatchSize() int {
	return dl.cursor.localBatchSize
}

// Files returns the discovered shard paths in load order.
func (dl *DataLoader) Files() []string {
	return dl.cursor.files
}
