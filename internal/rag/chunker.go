// Package rag implements the indexing and retrieval pipeline: markdown
// documents are split into heading-scoped chunks, embedded, and stored;
// queries retrieve the nearest chunks above a relevance threshold.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is one retrievable slice of a markdown document, before embedding.
type Chunk struct {
	DocID     string
	ChunkID   string
	Path      string
	TitlePath string
	Section   string
	Text      string
	Hash      string
}

// Chunker splits markdown content into heading-delimited chunks and
// windows long sections into overlapping sub-chunks.
//
// Sizes are measured in runes, not bytes, so CJK-heavy documents chunk
// the same way as ASCII ones.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker. overlap must be smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d with size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// section is a run of body text under one heading breadcrumb.
type section struct {
	titlePath string
	heading   string
	text      string
}

// Split chunks one document. Chunk IDs are "<doc_id>_chunk_<n>" with n
// counting from 0 across the whole document.
//
// Heading handling: a line starting with '#' flushes the current body
// buffer and updates the breadcrumb. A level-1 heading replaces the
// breadcrumb, a level-2 heading appends " / <heading>" (separator only
// when the breadcrumb is non-empty), and a level-3 heading always appends
// " > <heading>". Deeper headings update only the section name. The
// breadcrumb never truncates when a shallower heading follows a deeper
// one; that matches the recorded document inventory and changing it would
// invalidate every stored point.
//
// A document that is all headings with no body yields no chunks.
func (c *Chunker) Split(content, path, docID string) []Chunk {
	var chunks []Chunk

	flush := func(sec section) {
		text := strings.TrimSpace(sec.text)
		if text == "" {
			return
		}
		for _, piece := range c.window(text) {
			chunks = append(chunks, Chunk{
				DocID:     docID,
				ChunkID:   fmt.Sprintf("%s_chunk_%d", docID, len(chunks)),
				Path:      path,
				TitlePath: sec.titlePath,
				Section:   sec.heading,
				Text:      piece,
				Hash:      HashText(piece),
			})
		}
	}

	var (
		titlePath string
		heading   string
		buf       strings.Builder
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if level, text, ok := parseHeading(trimmed); ok {
			flush(section{titlePath: titlePath, heading: heading, text: buf.String()})
			buf.Reset()

			heading = text
			switch level {
			case 1:
				titlePath = text
			case 2:
				if titlePath != "" {
					titlePath += " / "
				}
				titlePath += text
			case 3:
				titlePath += " > " + text
			}
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush(section{titlePath: titlePath, heading: heading, text: buf.String()})

	return chunks
}

// parseHeading reports whether a trimmed line is an ATX heading and, if
// so, its level and text.
func parseHeading(trimmed string) (level int, text string, ok bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	text = strings.TrimSpace(trimmed[level:])
	return level, text, true
}

// window slices text into overlapping pieces of at most c.size runes.
// Windows advance by size−overlap; the scan stops at the window that
// reaches end-of-text, so no empty trailing window is emitted.
func (c *Chunker) window(text string) []string {
	runes := []rune(text)
	total := len(runes)
	if total <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	var pieces []string
	for start := 0; start < total; start += step {
		end := start + c.size
		if end > total {
			end = total
		}
		pieces = append(pieces, string(runes[start:end]))
		if end >= total {
			break
		}
	}
	return pieces
}

// HashText returns the SHA-256 hex digest of text. It is used both for
// per-chunk content hashes and whole-file change detection.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
