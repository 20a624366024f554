package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	// Check format
	if !strings.HasPrefix(id, "job-") {
		t.Errorf("expected ID to start with 'job-', got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "job-")); err != nil {
		t.Errorf("expected uuid suffix, got %s: %v", id, err)
	}

	// Check uniqueness
	id2 := Generate()
	if id == id2 {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestWorker(t *testing.T) {
	a := Worker()
	b := Worker()

	if a == "" {
		t.Fatal("expected non-empty worker ID")
	}
	if a == b {
		t.Errorf("expected distinct worker IDs, got %s twice", a)
	}
}
