package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/yargevad/filepathx"

	"github.com/openbio/esmshard"
)

func main() {
	inputGlob := flag.String("input", "",
		"glob pattern for shard files, e.g. 'omgprot50/*_train_*.bin'")
	eosId := flag.Int("eos", 2, "EOS token id for sample counting")
	decodeHead := flag.Int("decode", 0,
		"decode and print the first N tokens of each shard")
	flag.Parse()

	if *inputGlob == "" {
		flag.Usage()
		log.Fatal("Must provide -input glob for shard files")
	}

	paths, err := filepathx.Glob(*inputGlob)
	if err != nil {
		log.Fatal(err)
	}
	if len(paths) == 0 {
		log.Fatalf("No shard files match %s", *inputGlob)
	}
	sort.Strings(paths)

	tokenizer := esmshard.NewESMTokenizer()
	var totalTokens, totalSamples int64
	failed := false
	for _, path := range paths {
		tokens, err := esmshard.ReadShard(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		samples := 0
		for _, token := range tokens {
			if int(token) == *eosId {
				samples++
			}
		}
		totalTokens += int64(len(tokens))
		totalSamples += int64(samples)
		fmt.Printf("%s: %s tokens, %s samples\n", path,
			humanize.Comma(int64(len(tokens))),
			humanize.Comma(int64(samples)))
		if *decodeHead > 0 {
			head := tokens
			if len(head) > *decodeHead {
				head = head[:*decodeHead]
			}
			fmt.Printf("  %s\n", tokenizer.Decode(head))
		}
	}
	fmt.Printf("%d shards, %s tokens, %s samples\n", len(paths),
		humanize.Comma(totalTokens), humanize.Comma(totalSamples))
	if failed {
		os.Exit(1)
	}
}
