package embedding

import (
	"testing"
)

func TestNewGenAIEngine_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewGenAIEngine("", "gemini-embedding-001")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestGenAIEngine_NameAndDimensions(t *testing.T) {
	t.Parallel()

	e := &GenAIEngine{model: "gemini-embedding-001"}
	if got := e.Name(); got != "genai:gemini-embedding-001" {
		t.Errorf("Name() = %q", got)
	}
	if got := e.Dimensions(); got != 768 {
		t.Errorf("Dimensions() = %d, want 768", got)
	}
}
