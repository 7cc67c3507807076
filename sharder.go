package esmshard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/openbio/esmshard/internal/logger"
)

// ShardingWriter accumulates an unbounded token stream into a fixed-size
// buffer and flushes full shards to disk as
// {dataset}_{split}_{index:06d}.bin. A document that straddles a shard
// boundary is split across the two files, never dropped. The buffer is owned
// by the writer and lives for exactly one split's pass.
type ShardingWriter struct {
	outDir     string
	dataset    string
	split      string
	shardSize  int
	buf        Tokens
	count      int
	shardIndex int
	total      int64
}

// NewShardingWriter prepares a writer for one split, creating outDir if
// absent. shardSize is the token capacity of each shard file.
func NewShardingWriter(outDir, dataset, split string,
	shardSize int) (*ShardingWriter, error) {
	if shardSize < 1 {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"shard size must be positive, got %d", shardSize)}
	}
	if shardSize > MaxShardTokens {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"shard size %d exceeds the %d token shard limit",
			shardSize, MaxShardTokens)}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", outDir, err)
	}
	return &ShardingWriter{
		outDir:    outDir,
		dataset:   dataset,
		split:     split,
		shardSize: shardSize,
		buf:       make(Tokens, shardSize),
	}, nil
}

func (sw *ShardingWriter) shardPath() string {
	return filepath.Join(sw.outDir, fmt.Sprintf("%s_%s_%06d.bin",
		sw.dataset, sw.split, sw.shardIndex))
}

// Add appends one document's tokens to the current shard, flushing and
// rolling over as many times as the document requires.
func (sw *ShardingWriter) Add(tokens Tokens) error {
	sw.total += int64(len(tokens))
	for len(tokens) > 0 {
		if sw.count+len(tokens) < sw.shardSize {
			copy(sw.buf[sw.count:], tokens)
			sw.count += len(tokens)
			return nil
		}
		// Fill the shard to the brim; the remainder of this document seeds
		// the next one.
		remainder := sw.shardSize - sw.count
		copy(sw.buf[sw.count:], tokens[:remainder])
		if err := WriteShard(sw.shardPath(), sw.buf); err != nil {
			return err
		}
		sw.shardIndex++
		sw.count = 0
		tokens = tokens[remainder:]
	}
	return nil
}

// Flush writes any buffered tokens as a final partial shard. A writer with
// an empty buffer flushes nothing.
func (sw *ShardingWriter) Flush() error {
	if sw.count == 0 {
		return nil
	}
	if err := WriteShard(sw.shardPath(), sw.buf[:sw.count]); err != nil {
		return err
	}
	sw.shardIndex++
	sw.count = 0
	return nil
}

// TotalTokens reports how many tokens have been added so far.
func (sw *ShardingWriter) TotalTokens() int64 {
	return sw.total
}

// ShardsWritten reports how many shard files have been completed.
func (sw *ShardingWriter) ShardsWritten() int {
	return sw.shardIndex
}

// LogSummary emits the final accounting for this split.
func (sw *ShardingWriter) LogSummary() {
	logger.Log.Info("split complete",
		"dataset", sw.dataset,
		"split", sw.split,
		"shards", sw.shardIndex,
		"tokens", humanize.Comma(sw.total))
}
