package main

import (
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openbio/esmshard"
	"github.com/openbio/esmshard/internal/logger"
)

const encodeChunkSize = 16

var splits = []string{"valid", "test", "train"}

func main() {
	shardSize := flag.Int("shard_size", 1e8,
		"size of each shard in tokens")
	inputDir := flag.String("input", "",
		"input directory with per-split subdirectories of .fasta/.txt files")
	outputDir := flag.String("output", "omgprot50",
		"output directory for shard files")
	dataset := flag.String("dataset", "omgprot50",
		"dataset name used in shard filenames")
	metricsAddr := flag.String("metrics", "",
		"address to serve Prometheus metrics, empty to disable")
	logLevel := flag.String("log_level", "info",
		"log level [debug, info, warn, error]")
	logFormat := flag.String("log_format", "console",
		"log format [console, json]")
	flag.Parse()

	logger.Setup(*logLevel, *logFormat)
	if *inputDir == "" {
		flag.Usage()
		logger.Log.Error("must provide -input for sequence source")
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Log.Info("metrics serving", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Log.Error("metrics server", "error", err)
			}
		}()
	}

	// Leave a few cores free; the tokenizer pool should not hog the host.
	workers := runtime.NumCPU() - 4
	if workers < 1 {
		workers = 1
	}
	tokenizer := esmshard.NewESMTokenizer()

	for _, split := range splits {
		if err := shardSplit(tokenizer, *inputDir, *outputDir, *dataset,
			split, *shardSize, workers); err != nil {
			logger.Log.Error("sharding split failed",
				"split", split, "error", err)
			os.Exit(1)
		}
	}
	hits, misses := tokenizer.CacheStats()
	logger.Log.Info("tokenizer cache", "hits", hits, "misses", misses)
}

func shardSplit(tokenizer *esmshard.ESMTokenizer, inputDir, outputDir,
	dataset, split string, shardSize, workers int) error {
	nextDoc, err := ReadSequences(filepath.Join(inputDir, split))
	if err != nil {
		logger.Log.Warn("skipping split", "split", split, "reason", err)
		return nil
	}

	writer, err := esmshard.NewShardingWriter(outputDir, dataset, split,
		shardSize)
	if err != nil {
		return err
	}

	begin := time.Now()
	nextTokens := esmshard.EncodeParallel(nextDoc, tokenizer.Encode,
		workers, encodeChunkSize)
	for {
		tokens, ok := nextTokens()
		if !ok {
			break
		}
		if err := writer.Add(tokens); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	writer.LogSummary()

	if duration := time.Since(begin).Seconds(); duration > 0 {
		logger.Log.Info("split throughput",
			"split", split,
			"tokens_per_sec", humanize.Comma(int64(
				float64(writer.TotalTokens())/duration)))
	}
	return nil
}
