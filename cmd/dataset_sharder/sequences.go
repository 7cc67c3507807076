package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/yargevad/filepathx"

	"github.com/openbio/esmshard"
	"github.com/openbio/esmshard/internal/logger"
)

// GlobSequenceFiles
// Given a split directory, recursively finds all `.fasta` and `.txt` files,
// sorted by path so a pass over the corpus is reproducible.
func GlobSequenceFiles(dirPath string) ([]string, error) {
	fastaPaths, err := filepathx.Glob(dirPath + "/**/*.fasta")
	if err != nil {
		return nil, err
	}
	textPaths, err := filepathx.Glob(dirPath + "/**/*.txt")
	if err != nil {
		return nil, err
	}
	paths := append(fastaPaths, textPaths...)
	if len(paths) == 0 {
		return nil, errors.New(fmt.Sprintf(
			"%s does not contain any .fasta or .txt files", dirPath))
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadSequences
// Produces a DocumentIterator over every sequence in the split directory.
// FASTA records are joined across their wrapped lines; `.txt` files carry
// one sequence per line. A background goroutine keeps the channel primed
// while the prior sequence is being tokenized.
func ReadSequences(dirPath string) (esmshard.DocumentIterator, error) {
	paths, err := GlobSequenceFiles(dirPath)
	if err != nil {
		return nil, err
	}

	sequences := make(chan string, 64)
	go func() {
		for _, path := range paths {
			logger.Log.Info("reading sequences", "path", path)
			if err := streamSequenceFile(path, sequences); err != nil {
				logger.Log.Error("reading sequence file",
					"path", path, "error", err)
			}
		}
		close(sequences)
	}()

	return func() (string, bool) {
		sequence, ok := <-sequences
		return sequence, ok
	}, nil
}

func streamSequenceFile(path string, sequences chan<- string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	fasta := strings.HasSuffix(path, ".fasta")
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var record strings.Builder
	flush := func() {
		if record.Len() > 0 {
			sequences <- record.String()
			record.Reset()
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}
		if fasta {
			if strings.HasPrefix(line, ">") {
				flush()
				continue
			}
			record.WriteString(line)
		} else {
			sequences <- line
		}
	}
	flush()
	return scanner.Err()
}
