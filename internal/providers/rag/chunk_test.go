package rag

import (
	"strings"
	"testing"
)

func TestChunkText(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		cfg            ChunkerConfig
		expectedChunks []string
	}{
		{
			name:           "Empty input",
			text:           "",
			cfg:            DefaultChunkerConfig(),
			expectedChunks: nil,
		},
		{
			name:           "Whitespace only",
			text:           "   \n\t   ",
			cfg:            DefaultChunkerConfig(),
			expectedChunks: nil,
		},
		{
			name:           "Short text fits one window",
			text:           "hello world",
			cfg:            DefaultChunkerConfig(),
			expectedChunks: []string{"hello world"},
		},
		{
			name: "Windows overlap",
			text: "abcdefghij",
			cfg: ChunkerConfig{
				WindowSize: 4,
				Overlap:    2,
			},
			// start advances by 2: abcd, cdef, efgh, ghij, ij
			expectedChunks: []string{"abcd", "cdef", "efgh", "ghij", "ij"},
		},
		{
			name: "No overlap",
			text: "abcdef",
			cfg: ChunkerConfig{
				WindowSize: 3,
				Overlap:    0,
			},
			expectedChunks: []string{"abc", "def"},
		},
		{
			name: "Whitespace window skipped, indexes stay contiguous",
			text: "ab    cd",
			cfg: ChunkerConfig{
				WindowSize: 2,
				Overlap:    0,
			},
			expectedChunks: []string{"ab", "cd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.cfg)

			if len(got) != len(tt.expectedChunks) {
				t.Fatalf("got %d chunks, want %d: %v", len(got), len(tt.expectedChunks), got)
			}
			for i, c := range got {
				if c.Text != tt.expectedChunks[i] {
					t.Errorf("chunk %d = %q, want %q", i, c.Text, tt.expectedChunks[i])
				}
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
			}
		})
	}
}

func TestChunkTextDefaultWindows(t *testing.T) {
	// 2100 characters with the default 1000/200 config: windows start at
	// 0, 800 and 1600, so three chunks.
	text := strings.Repeat("a", 2100)
	got := ChunkText(text, DefaultChunkerConfig())

	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if len(got[0].Text) != 1000 || len(got[1].Text) != 1000 || len(got[2].Text) != 500 {
		t.Errorf("window lengths = %d, %d, %d; want 1000, 1000, 500",
			len(got[0].Text), len(got[1].Text), len(got[2].Text))
	}
}

func TestChunkTextRuneSafety(t *testing.T) {
	text := strings.Repeat("日", 5)
	got := ChunkText(text, ChunkerConfig{WindowSize: 2, Overlap: 1})

	for i, c := range got {
		if !strings.HasPrefix(c.Text, "日") {
			t.Fatalf("chunk %d split mid rune: %q", i, c.Text)
		}
	}
}
