package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shard_tokens_written_total",
		Help: "The total number of tokens written to shard files",
	})

	ShardsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shards_written_total",
		Help: "The total number of shard files written",
	})

	ShardsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shards_loaded_total",
		Help: "The total number of shard files loaded from disk",
	})

	BatchesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loader_batches_served_total",
		Help: "The total number of batches handed to consumers",
	})

	PadTokensEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loader_pad_tokens_total",
		Help: "The total number of padding tokens inserted while packing rows",
	})

	MalformedSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loader_malformed_samples_total",
		Help: "The total number of samples missing a CLS start or EOS end",
	})

	SampleLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loader_sample_length_tokens",
		Help:    "Histogram of sample lengths seen while packing rows",
		Buckets: prometheus.ExponentialBuckets(8, 2, 12),
	})
)
