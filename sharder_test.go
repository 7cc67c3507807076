package esmshard

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func readAllShards(t *testing.T, dir, dataset, split string,
	expectShards int) Tokens {
	var all Tokens
	for idx := 0; idx < expectShards; idx++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%06d.bin",
			dataset, split, idx))
		tokens, err := ReadShard(path)
		assert.NoError(t, err)
		all = append(all, tokens...)
	}
	// There must be no shard past the expected count.
	extra := filepath.Join(dir, fmt.Sprintf("%s_%s_%06d.bin",
		dataset, split, expectShards))
	_, err := ReadShard(extra)
	assert.Error(t, err)
	return all
}

func TestShardingWriterTwoShards(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewShardingWriter(dir, "corpus", "train", 1000)
	assert.NoError(t, err)

	// 1,030 tokens in uneven documents; the shard boundary lands inside
	// the fourth document.
	var corpus Tokens
	next := 0
	for _, docLen := range []int{300, 300, 300, 100, 30} {
		doc := make(Tokens, docLen)
		for idx := range doc {
			doc[idx] = Token(next % 65536)
			next++
		}
		corpus = append(corpus, doc...)
		assert.NoError(t, writer.Add(doc))
	}
	assert.NoError(t, writer.Flush())

	assert.Equal(t, 2, writer.ShardsWritten())
	assert.Equal(t, int64(1030), writer.TotalTokens())

	first, err := ReadShard(filepath.Join(dir, "corpus_train_000000.bin"))
	assert.NoError(t, err)
	assert.Len(t, first, 1000)
	second, err := ReadShard(filepath.Join(dir, "corpus_train_000001.bin"))
	assert.NoError(t, err)
	assert.Len(t, second, 30)

	assert.Equal(t, corpus, append(append(Tokens{}, first...), second...))
}

func TestShardingWriterDocumentLargerThanShard(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewShardingWriter(dir, "corpus", "train", 1000)
	assert.NoError(t, err)

	doc := sequentialTokens(2500)
	assert.NoError(t, writer.Add(doc))
	assert.NoError(t, writer.Flush())
	assert.Equal(t, 3, writer.ShardsWritten())

	all := readAllShards(t, dir, "corpus", "train", 3)
	assert.Equal(t, doc, all)
}

func TestShardingWriterExactFill(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewShardingWriter(dir, "corpus", "valid", 100)
	assert.NoError(t, err)

	assert.NoError(t, writer.Add(sequentialTokens(100)))
	// The full buffer flushed on Add; Flush has nothing left.
	assert.Equal(t, 1, writer.ShardsWritten())
	assert.NoError(t, writer.Flush())
	assert.Equal(t, 1, writer.ShardsWritten())
}

func TestShardingWriterNoTokenLoss(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewShardingWriter(dir, "corpus", "test", 257)
	assert.NoError(t, err)

	var corpus Tokens
	for docLen := 1; docLen < 100; docLen++ {
		doc := sequentialTokens(docLen)
		corpus = append(corpus, doc...)
		assert.NoError(t, writer.Add(doc))
	}
	assert.NoError(t, writer.Flush())

	all := readAllShards(t, dir, "corpus", "test", writer.ShardsWritten())
	assert.Equal(t, corpus, all)
}

func TestShardingWriterBadShardSize(t *testing.T) {
	_, err := NewShardingWriter(t.TempDir(), "corpus", "train", 0)
	assert.Error(t, err)
	assert.IsType(t, ConfigError{}, err)

	_, err = NewShardingWriter(t.TempDir(), "corpus", "train",
		MaxShardTokens+1)
	assert.Error(t, err)
	assert.IsType(t, ConfigError{}, err)
}

func TestEncodeParallelPreservesOrder(t *testing.T) {
	docs := make([]string, 500)
	for idx := range docs {
		docs[idx] = fmt.Sprintf("doc-%d", idx)
	}
	cursor := 0
	nextDoc := func() (string, bool) {
		if cursor >= len(docs) {
			return "", false
		}
		doc := docs[cursor]
		cursor++
		return doc, true
	}
	encode := func(doc string) Tokens {
		var id int
		fmt.Sscanf(doc, "doc-%d", &id)
		return Tokens{Token(id), Token(id)}
	}

	nextTokens := EncodeParallel(nextDoc, encode, 8, 16)
	for idx := 0; idx < len(docs); idx++ {
		tokens, ok := nextTokens()
		assert.True(t, ok)
		assert.Equal(t, Tokens{Token(idx), Token(idx)}, tokens)
	}
	_, ok := nextTokens()
	assert.False(t, ok)
}

func TestEncodeParallelEmptyStream(t *testing.T) {
	nextTokens := EncodeParallel(func() (string, bool) {
		return "", false
	}, func(string) Tokens { return nil }, 4, 16)
	_, ok := nextTokens()
	assert.False(t, ok)
}
