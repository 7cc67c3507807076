package esmshard

// DocumentIterator yields successive documents from a corpus, returning
// false once the stream is exhausted.
type DocumentIterator func() (string, bool)

// EncodeFunc converts one document's sequence text to a token array,
// including the boundary specials.
type EncodeFunc func(string) Tokens

// TokensIterator yields one document's token array per call, in corpus
// order, returning false at end of stream.
type TokensIterator func() (Tokens, bool)

// EncodeParallel fans document chunks out to a bounded worker pool and hands
// the encoded arrays back in input order, so shard contents are reproducible
// for a given corpus pass. Workers run ahead of the consumer; only the
// reassembly blocks on stragglers.
func EncodeParallel(nextDoc DocumentIterator, encode EncodeFunc,
	workers, chunkSize int) TokensIterator {
	if workers < 1 {
		workers = 1
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	type chunkJob struct {
		docs []string
		out  chan []Tokens
	}
	jobs := make(chan chunkJob, workers)
	ordered := make(chan chunkJob, workers*2)

	// Dispatcher: slice the document stream into chunks, handing each chunk
	// to the pool and recording its place in line.
	go func() {
		for {
			docs := make([]string, 0, chunkSize)
			for len(docs) < chunkSize {
				doc, ok := nextDoc()
				if !ok {
					break
				}
				docs = append(docs, doc)
			}
			if len(docs) == 0 {
				break
			}
			job := chunkJob{docs: docs, out: make(chan []Tokens, 1)}
			ordered <- job
			jobs <- job
		}
		close(jobs)
		close(ordered)
	}()

	for worker := 0; worker < workers; worker++ {
		go func() {
			for job := range jobs {
				encoded := make([]Tokens, len(job.docs))
				for idx := range job.docs {
					encoded[idx] = encode(job.docs[idx])
				}
				job.out <- encoded
			}
		}()
	}

	var current []Tokens
	return func() (Tokens, bool) {
		for len(current) == 0 {
			job, ok := <-ordered
			if !ok {
				return nil, false
			}
			current = <-job.out
		}
		tokens := current[0]
		current = current[1:]
		return tokens, true
	}
}
