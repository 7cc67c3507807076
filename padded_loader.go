package esmshard

import (
	"fmt"
	"math/rand"

	"github.com/openbio/esmshard/internal/logger"
	"github.com/openbio/esmshard/internal/metrics"
)

// PaddedDataLoader re-segments the raw shard stream into EOS-delimited
// samples and packs them into rows of exactly localBatchSize tokens, padding
// with padID. Samples are never truncated by a shard boundary: the tokens
// after the last EOS of a shard are carried over and prepended to the next
// one. After maxEpochs full passes the stream drains deterministically and
// NextBatch returns empty batches.
type PaddedDataLoader struct {
	cursor    *shardCursor
	tokens    Tokens
	leftover  Tokens
	clsID     Token
	eosID     Token
	padID     Token
	maxEpochs int
}

// NewPaddedDataLoader constructs a padded loader over the shard files
// matching pattern. seqLen is the global token count per step; every rank
// receives seqLen/worldSize tokens, one packed row, per batch.
func NewPaddedDataLoader(pattern string, seqLen, rank, worldSize int,
	clsID, eosID, padID Token, maxEpochs int) (*PaddedDataLoader, error) {
	if maxEpochs < 1 {
		return nil, ConfigError{Reason: fmt.Sprintf(
			"max epochs must be at least 1, got %d", maxEpochs)}
	}
	cursor, err := newShardCursor(pattern, seqLen, rank, worldSize)
	if err != nil {
		return nil, err
	}
	loader := &PaddedDataLoader{
		cursor:    cursor,
		clsID:     clsID,
		eosID:     eosID,
		padID:     padID,
		maxEpochs: maxEpochs,
	}
	if err := loader.Reset(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Reset drops any leftover carry, rewinds the shard counter, and loads the
// first shard. File order is whatever the last reshuffle left in place.
func (pl *PaddedDataLoader) Reset() error {
	pl.cursor.nextShard = 0
	pl.leftover = nil
	return pl.Advance()
}

// Advance loads the next shard, prepends the leftover carry, reshuffles the
// file list at epoch boundaries, and repacks the combined buffer into
// padded rows. Past maxEpochs it packs only the remaining leftover; once
// that is empty the loader is drained.
func (pl *PaddedDataLoader) Advance() error {
	sc := pl.cursor
	sc.pos = 0

	for {
		var raw Tokens
		if sc.nextShard/len(sc.files) < pl.maxEpochs {
			shard, err := ReadShard(sc.files[sc.nextShard%len(sc.files)])
			if err != nil {
				return err
			}
			raw = make(Tokens, 0, len(pl.leftover)+len(shard))
			raw = append(raw, pl.leftover...)
			raw = append(raw, shard...)
			sc.nextShard++
		} else {
			raw = pl.leftover
		}
		if len(raw) == 0 {
			pl.leftover = nil
			pl.tokens = nil
			return nil
		}

		// A fresh epoch just started; reshuffle the file list. The shard
		// counter seeds the generator, so every rank derives the identical
		// permutation.
		if sc.nextShard%len(sc.files) == 0 {
			shuffleFiles(sc.files, int64(sc.nextShard))
		}

		packed, leftover := packRows(raw, sc.localBatchSize,
			pl.clsID, pl.eosID, pl.padID)
		if len(packed) == 0 {
			if sc.nextShard/len(sc.files) >= pl.maxEpochs {
				// No EOS left in the carry and no shards left to extend
				// it; an unterminated tail can never become a sample.
				logger.Log.Warn("dropping unterminated tail at end of stream",
					"tokens", len(leftover))
				pl.tokens = nil
				pl.leftover = nil
				return nil
			}
			// A whole shard without a single EOS; keep accumulating.
			pl.leftover = append(Tokens(nil), leftover...)
			continue
		}
		pl.tokens = packed
		pl.leftover = append(Tokens(nil), leftover...)
		return nil
	}
}

// NextBatch returns this rank's next packed row. Returns an empty batch once
// the stream is drained.
func (pl *PaddedDataLoader) NextBatch() (Tokens, error) {
	if len(pl.tokens) == 0 {
		return nil, nil
	}
	batch := pl.cursor.rankSlice(pl.tokens)
	if pl.cursor.pos+pl.cursor.batchSize >= len(pl.tokens) {
		if err := pl.Advance(); err != nil {
			return nil, err
		}
	}
	metrics.BatchesServed.Inc()
	return batch, nil
}

// Epoch reports how many full passes over the file list have completed.
func (pl *PaddedDataLoader) Epoch() int {
	return pl.cursor.nextShard / len(pl.cursor.files)
}

// Done reports whether the stream has drained: all epochs consumed and no
// packed rows remain.
func (pl *PaddedDataLoader) Done() bool {
	return len(pl.tokens) == 0
}

// LocalBatchSize is the per-rank row width.
func (pl *PaddedDataLoader) LocalBatchSize() int {
	return pl.cursor.localBatchSize
}

// Files returns the shard paths in current cycling order. Reshuffles mutate
// this order in place at every epoch boundary.
func (pl *PaddedDataLoader) Files() []string {
	return pl.cursor.files
}

// shuffleFiles permutes paths with a generator constructed from seed alone,
// so identical seeds give identical orders on every rank.
func shuffleFiles(paths []string, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(paths), func(i, j int) {
		paths[i], paths[j] = paths[j], paths[i]
	})
}

// eosPositions returns the index of every eosID occurrence in raw.
func eosPositions(raw Tokens, eosID Token) []int {
	positions := make([]int, 0, len(raw)/64)
	for idx, token := range raw {
		if token == eosID {
			positions = append(positions, idx)
		}
	}
	return positions
}

// evenChunks splits sample into numChunks runs of ceil(len/numChunks) tokens,
// the last possibly shorter. Every chunk fits within one row when numChunks
// is len/rowLen+1.
func evenChunks(sample Tokens, numChunks int) []Tokens {
	chunkSize := (len(sample) + numChunks - 1) / numChunks
	chunks := make([]Tokens, 0, numChunks)
	for begin := 0; begin < len(sample); begin += chunkSize {
		end := begin + chunkSize
		if end > len(sample) {
			end = len(sample)
		}
		chunks = append(chunks, sample[begin:end])
	}
	return chunks
}

// appendPad extends packed with count padID tokens.
func appendPad(packed Tokens, count int, padID Token) Tokens {
	for idx := 0; idx < count; idx++ {
		packed = append(packed, padID)
	}
	if count > 0 {
		metrics.PadTokensEmitted.Add(float64(count))
	}
	return packed
}

// packRows segments raw at EOS markers and packs the samples into rows of
// exactly rowLen tokens. A sample that would spill past the end of the
// current row pads the row out first and starts fresh; a sample longer than
// rowLen is split into even chunks, each emitted as its own padded row, and
// never shares rows with its neighbors. The returned packed buffer is always
// a multiple of rowLen; tokens after the last EOS are returned as leftover
// for the caller to carry into the next shard.
//
// Samples that do not start with clsID are logged and packed anyway; with a
// clean corpus this never fires.
func packRows(raw Tokens, rowLen int, clsID, eosID,
	padID Token) (packed Tokens, leftover Tokens) {
	positions := eosPositions(raw, eosID)
	if len(positions) == 0 {
		// No complete sample in sight; everything is carry.
		return nil, raw
	}
	packed = make(Tokens, 0, len(raw)+rowLen)
	rowFill := 0
	sampleStart := 0
	for _, eosIdx := range positions {
		sample := raw[sampleStart : eosIdx+1]
		sampleStart = eosIdx + 1

		if sample[0] != clsID {
			logger.Log.Warn("sample does not start with CLS",
				"first", sample[0],
				"length", len(sample),
				"eos_index", eosIdx)
			metrics.MalformedSamples.Inc()
		}
		metrics.SampleLength.Observe(float64(len(sample)))

		// Sample spills past the current row; close the row with padding.
		if rowFill > 0 && len(sample)+rowFill >= rowLen {
			packed = appendPad(packed, rowLen-rowFill, padID)
			rowFill = 0
		}
		// Oversized sample: even chunks, one padded row each.
		if len(sample) > rowLen {
			for _, chunk := range evenChunks(sample, len(sample)/rowLen+1) {
				packed = append(packed, chunk...)
				packed = appendPad(packed, rowLen-len(chunk), padID)
			}
			rowFill = 0
			continue
		}
		packed = append(packed, sample...)
		rowFill += len(sample)
		// Exact fit completes the row with no padding.
		if rowFill == rowLen {
			rowFill = 0
		}
	}
	if rowFill > 0 {
		packed = appendPad(packed, rowLen-rowFill, padID)
	}
	return packed, raw[sampleStart:]
}
