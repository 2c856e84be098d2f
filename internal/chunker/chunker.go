// Package chunker splits document text into overlapping word windows.
//
// The splitter is a pure function of its input: no I/O, no randomness, the
// same text always produces the same chunks. Windows are measured in
// whitespace-delimited words and advance by chunkSize-overlap words, so
// consecutive chunks share exactly `overlap` words.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one contiguous window of words from a source document.
type Chunk struct {
	// Index is the 0-based sequential position of the chunk.
	Index int

	// Text is the window content, words joined by single spaces.
	Text string

	// Page is the 1-based page the window starts on, or 0 when the source
	// carried no page information.
	Page int
}

// Splitter produces overlapping word-window chunks.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a Splitter.
//
// chunkSize must be positive and overlap must satisfy 0 <= overlap <
// chunkSize; anything else would make the window step non-positive and the
// split loop non-terminating, so it is rejected here rather than at split
// time.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap cannot be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be less than chunk size (%d)", overlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkSize returns the configured window length in words.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap in words.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks a flat text. Empty or all-whitespace input yields no chunks.
// Chunks carry no page attribution (Page is 0).
func (s *Splitter) Split(text string) []Chunk {
	return s.split(strings.Fields(text), nil)
}

// SplitPages chunks page-ordered text. Each chunk's Page is the 1-based page
// its first word belongs to. Pages that contain no words contribute nothing
// but still advance the page numbering.
func (s *Splitter) SplitPages(pages []string) []Chunk {
	var words []string
	var wordPages []int
	for i, page := range pages {
		for _, w := range strings.Fields(page) {
			words = append(words, w)
			wordPages = append(wordPages, i+1)
		}
	}
	return s.split(words, wordPages)
}

// split is the window loop shared by Split and SplitPages. wordPages, when
// non-nil, holds the 1-based page for each word.
func (s *Splitter) split(words []string, wordPages []int) []Chunk {
	if len(words) == 0 {
		return nil
	}

	step := s.chunkSize - s.overlap
	var chunks []Chunk

	for start := 0; start < len(words); start += step {
		end := start + s.chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunk := Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
		}
		if wordPages != nil {
			chunk.Page = wordPages[start]
		}
		chunks = append(chunks, chunk)

		// Once a window touches the last word the text is fully covered; a
		// further window would only repeat words from the overlap.
		if end == len(words) {
			break
		}
	}

	return chunks
}
