package esmshard

import (
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

const ESM_LRU_SZ = 32768

// esmVocab is the fixed 33-entry ESM-2 vocabulary: four leading specials,
// the amino-acid alphabet with ambiguity codes, then gap characters and the
// mask token. Token ids are positions in this list.
var esmVocab = []string{
	"<cls>", "<pad>", "<eos>", "<unk>",
	"L", "A", "G", "V", "S", "E", "R", "T", "I", "D", "P", "K", "Q", "N",
	"F", "Y", "M", "H", "W", "C", "X", "B", "U", "Z", "O", ".", "-",
	"<null_1>", "<mask>",
}

// ESMTokenizer encodes protein sequences against the ESM-2 character
// vocabulary, enclosing every sequence in CLS and EOS. Protein corpora are
// deduplicated upstream but still repeat; an ARC cache short-circuits
// re-encoding. Safe for concurrent use by pipeline workers.
type ESMTokenizer struct {
	encoder   map[rune]Token
	decoder   []string
	cache     *lru.ARCCache
	lruHits   atomic.Int64
	lruMisses atomic.Int64
	ClsToken  Token
	PadToken  Token
	EosToken  Token
	UnkToken  Token
	MaskToken Token
}

func NewESMTokenizer() *ESMTokenizer {
	encoder := make(map[rune]Token, len(esmVocab))
	for id, entry := range esmVocab {
		if len(entry) == 1 {
			encoder[rune(entry[0])] = Token(id)
		}
	}
	cache, _ := lru.NewARC(ESM_LRU_SZ)
	return &ESMTokenizer{
		encoder:   encoder,
		decoder:   esmVocab,
		cache:     cache,
		ClsToken:  0,
		PadToken:  1,
		EosToken:  2,
		UnkToken:  3,
		MaskToken: 32,
	}
}

func (et *ESMTokenizer) VocabSize() int {
	return len(esmVocab)
}

// CacheStats reports cumulative ARC cache hits and misses.
func (et *ESMTokenizer) CacheStats() (hits, misses int64) {
	return et.lruHits.Load(), et.lruMisses.Load()
}

// Encode tokenizes one sequence as CLS + residues + EOS. Residues outside
// the vocabulary map to UNK. The returned array may be shared with the
// cache; callers must not mutate it.
func (et *ESMTokenizer) Encode(sequence string) Tokens {
	if cached, ok := et.cache.Get(sequence); ok {
		et.lruHits.Add(1)
		return cached.(Tokens)
	}
	et.lruMisses.Add(1)
	tokens := make(Tokens, 0, len(sequence)+2)
	tokens = append(tokens, et.ClsToken)
	for _, residue := range strings.ToUpper(sequence) {
		if token, ok := et.encoder[residue]; ok {
			tokens = append(tokens, token)
		} else {
			tokens = append(tokens, et.UnkToken)
		}
	}
	tokens = append(tokens, et.EosToken)
	et.cache.Add(sequence, tokens)
	return tokens
}

// Decode renders tokens back to text, specials included, for inspection
// tooling.
func (et *ESMTokenizer) Decode(tokens Tokens) string {
	var text strings.Builder
	for _, token := range tokens {
		if int(token) < len(et.decoder) {
			text.WriteString(et.decoder[token])
		} else {
			text.WriteString("<unk>")
		}
	}
	return text.String()
}
