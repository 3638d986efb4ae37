package rag

import "strings"

type Chunk struct {
	Text  string
	Index int
}

type ChunkerConfig struct {
	// WindowSize is the fixed window width in characters.
	WindowSize int
	// Overlap is how many characters consecutive windows share. The window
	// start advances by WindowSize-Overlap each step.
	Overlap int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		WindowSize: 1000,
		Overlap:    200,
	}
}

// ChunkText splits text into fixed overlapping character windows. Windows
// are cut on runes, not bytes, so multi-byte text never splits mid
// character. Empty windows after trimming are skipped; indexes stay
// contiguous over the kept chunks.
func ChunkText(text string, cfg ChunkerConfig) []Chunk {
	if cfg.WindowSize <= 0 {
		return nil
	}
	step := cfg.WindowSize - cfg.Overlap
	if step <= 0 {
		step = cfg.WindowSize
	}

	runes := []rune(text)
	var chunks []Chunk
	index := 0

	for start := 0; start < len(runes); start += step {
		end := start + cfg.WindowSize
		if end > len(runes) {
			end = len(runes)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Index: index})
			index++
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}
