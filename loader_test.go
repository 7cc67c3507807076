package esmshard

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// writeShards writes each token slice as one shard file and returns the glob
// pattern matching them.
func writeShards(t *testing.T, shards ...Tokens) string {
	dir := t.TempDir()
	for idx, tokens := range shards {
		path := filepath.Join(dir, fmt.Sprintf("corpus_train_%06d.bin", idx))
		assert.NoError(t, WriteShard(path, tokens))
	}
	return filepath.Join(dir, "corpus_train_*.bin")
}

func TestNewDataLoaderIndivisibleBatch(t *testing.T) {
	pattern := writeShards(t, sequentialTokens(100))
	_, err := NewDataLoader(pattern, 10, 0, 3)
	assert.Error(t, err)
	assert.IsType(t, ConfigError{}, err)
}

func TestNewDataLoaderBadRank(t *testing.T) {
	pattern := writeShards(t, sequentialTokens(100))
	_, err := NewDataLoader(pattern, 10, 2, 2)
	assert.Error(t, err)
	assert.IsType(t, ConfigError{}, err)
}

func TestNewDataLoaderNoFiles(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "missing_*.bin")
	_, err := NewDataLoader(pattern, 10, 0, 1)
	assert.Error(t, err)
	assert.IsType(t, ConfigError{}, err)
}

func TestDataLoaderRankSlicing(t *testing.T) {
	pattern := writeShards(t, sequentialTokens(100))

	rank0, err := NewDataLoader(pattern, 10, 0, 2)
	assert.NoError(t, err)
	rank1, err := NewDataLoader(pattern, 10, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, 5, rank0.LocalBatchSize())

	batch0, err := rank0.NextBatch()
	assert.NoError(t, err)
	batch1, err := rank1.NextBatch()
	assert.NoError(t, err)
	assert.Equal(t, Tokens{0, 1, 2, 3, 4}, batch0)
	assert.Equal(t, Tokens{5, 6, 7, 8, 9}, batch1)

	batch0, err = rank0.NextBatch()
	assert.NoError(t, err)
	batch1, err = rank1.NextBatch()
	assert.NoError(t, err)
	assert.Equal(t, Tokens{10, 11, 12, 13, 14}, batch0)
	assert.Equal(t, Tokens{15, 16, 17, 18, 19}, batch1)
}

func TestDataLoaderEagerAdvanceDropsTail(t *testing.T) {
	// One 100-token shard and a 10-token global batch: the loader serves
	// batches at offsets 0..80, then eagerly wraps; the final offset 90 is
	// never served.
	pattern := writeShards(t, sequentialTokens(100))
	loader, err := NewDataLoader(pattern, 10, 0, 1)
	assert.NoError(t, err)

	for offset := 0; offset <= 80; offset += 10 {
		batch, err := loader.NextBatch()
		assert.NoError(t, err)
		assert.Equal(t, Token(offset), batch[0])
		assert.Len(t, batch, 10)
	}
	// Wrapped back to the start of the (single) shard.
	batch, err := loader.NextBatch()
	assert.NoError(t, err)
	assert.Equal(t, Token(0), batch[0])
}

func TestDataLoaderCyclicAdvance(t *testing.T) {
	first := make(Tokens, 20)
	second := make(Tokens, 20)
	for idx := range first {
		first[idx] = 100
		second[idx] = 200
	}
	pattern := writeShards(t, first, second)

	loader, err := NewDataLoader(pattern, 10, 0, 1)
	assert.NoError(t, err)

	seen := make([]Token, 0, 6)
	for step := 0; step < 6; step++ {
		batch, err := loader.NextBatch()
		assert.NoError(t, err)
		seen = append(seen, batch[0])
	}
	// One batch per shard (the second half of each is tail-dropped),
	// alternating cyclically.
	assert.Equal(t, []Token{100, 200, 100, 200, 100, 200}, seen)
}

func TestDataLoaderReset(t *testing.T) {
	pattern := writeShards(t, sequentialTokens(100), sequentialTokens(50))
	loader, err := NewDataLoader(pattern, 10, 0, 1)
	assert.NoError(t, err)

	for step := 0; step < 12; step++ {
		_, err := loader.NextBatch()
		assert.NoError(t, err)
	}
	assert.NoError(t, loader.Reset())
	batch, err := loader.NextBatch()
	assert.NoError(t, err)
	assert.Equal(t, Tokens{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, batch)
}

func TestDataLoaderFilesSorted(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; discovery must sort lexicographically.
	for _, idx := range []int{2, 0, 1} {
		path := filepath.Join(dir, fmt.Sprintf("corpus_train_%06d.bin", idx))
		assert.NoError(t, WriteShard(path, sequentialTokens(50)))
	}
	loader, err := NewDataLoader(
		filepath.Join(dir, "corpus_train_*.bin"), 10, 0, 1)
	assert.NoError(t, err)
	files := loader.Files()
	assert.Len(t, files, 3)
	for idx, file := range files {
		assert.Contains(t, file, fmt.Sprintf("%06d", idx))
	}
}
