package document

import "testing"

func TestScoredChunkExposesChunkFields(t *testing.T) {
	sc := ScoredChunk{
		Chunk: Chunk{
			ID:         "manual.pdf:2",
			SourcePath: "manual.pdf",
			ChunkIndex: 2,
			Text:       "warranty terms",
		},
		Score: 0.87,
	}

	if sc.ID != "manual.pdf:2" {
		t.Errorf("ID = %q, want %q", sc.ID, "manual.pdf:2")
	}
	if sc.SourcePath != "manual.pdf" {
		t.Errorf("SourcePath = %q, want %q", sc.SourcePath, "manual.pdf")
	}
	if sc.ChunkIndex != 2 {
		t.Errorf("ChunkIndex = %d, want %d", sc.ChunkIndex, 2)
	}
	if sc.Text != "warranty terms" {
		t.Errorf("Text = %q, want %q", sc.Text, "warranty terms")
	}
}
