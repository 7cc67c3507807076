package esmshard

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"

	"github.com/openbio/esmshard/internal/logger"
	"github.com/openbio/esmshard/internal/metrics"
)

type Token uint16
type Tokens []Token

const (
	// ShardMagic and ShardVersion identify the on-disk shard format. The
	// header is 256 little-endian int32s: magic, version, token count, and
	// 253 reserved zeros.
	ShardMagic   = 20240520
	ShardVersion = 1

	// HeaderInts is the number of int32 slots in a shard header.
	HeaderInts  = 256
	HeaderBytes = HeaderInts * 4

	// TokenSize is the width of one token unit on disk and in every loader
	// buffer. Tokens are uint16 little-endian everywhere; there is no
	// narrower in-memory representation.
	TokenSize = 2

	// MaxShardTokens is the largest token count the int32 header field can
	// carry.
	MaxShardTokens = 1<<31 - 1
)

// WriteShard serializes tokens to path with the standard header. The file is
// created or truncated. Fails with CapacityError when the token count does
// not fit the header's int32 count field.
func WriteShard(path string, tokens Tokens) error {
	if len(tokens) > MaxShardTokens {
		return CapacityError{Tokens: len(tokens)}
	}
	logger.Log.Info("writing shard",
		"path", path,
		"tokens", humanize.Comma(int64(len(tokens))))

	buf := make([]byte, HeaderBytes+len(tokens)*TokenSize)
	binary.LittleEndian.PutUint32(buf[0:], ShardMagic)
	binary.LittleEndian.PutUint32(buf[4:], ShardVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(tokens)))
	for idx, token := range tokens {
		binary.LittleEndian.PutUint16(buf[HeaderBytes+idx*TokenSize:],
			uint16(token))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("writing shard %s: %w", path, err)
	}
	metrics.ShardsWritten.Inc()
	metrics.TokensWritten.Add(float64(len(tokens)))
	return nil
}

// ReadShard maps a shard file, validates its header, and returns a copy of
// its token payload. The mapping is released before returning; no caching is
// performed, the loaders read shards sequentially and discard them.
func ReadShard(path string) (Tokens, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shard %s: %w", path, err)
	}
	if info.Size() < HeaderBytes {
		return nil, FormatError{Path: path,
			Reason: fmt.Sprintf("file is %d bytes, smaller than the "+
				"%d-byte header", info.Size(), HeaderBytes)}
	}

	data, mmapErr := mmap.Map(file, mmap.RDONLY, 0)
	if mmapErr != nil {
		return nil, fmt.Errorf("mapping shard %s: %w", path, mmapErr)
	}
	defer data.Unmap()
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != ShardMagic {
		return nil, FormatError{Path: path,
			Reason: fmt.Sprintf("magic number mismatch: %d", magic)}
	}
	if version := binary.LittleEndian.Uint32(data[4:]); version != ShardVersion {
		return nil, FormatError{Path: path,
			Reason: fmt.Sprintf("unsupported version: %d", version)}
	}
	numTokens := int(int32(binary.LittleEndian.Uint32(data[8:])))
	if numTokens < 0 {
		return nil, FormatError{Path: path,
			Reason: fmt.Sprintf("negative token count: %d", numTokens)}
	}
	payload := data[HeaderBytes:]
	if len(payload) != numTokens*TokenSize {
		return nil, FormatError{Path: path,
			Reason: fmt.Sprintf("payload is %d bytes, header claims %d "+
				"tokens (%d bytes)", len(payload), numTokens,
				numTokens*TokenSize)}
	}

	tokens := make(Tokens, numTokens)
	for idx := range tokens {
		tokens[idx] = Token(binary.LittleEndian.Uint16(
			payload[idx*TokenSize:]))
	}
	metrics.ShardsLoaded.Inc()
	return tokens, nil
}
