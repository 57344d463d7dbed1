package roomname

import (
	"regexp"
	"testing"
)

var namePattern = regexp.MustCompile(`^[a-z]+-[a-z]+-[a-z]+(-\d+)?$`)

func TestGenerate(t *testing.T) {
	for i := 0; i < 50; i++ {
		name, err := Generate(nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !namePattern.MatchString(name) {
			t.Fatalf("name %q has unexpected shape", name)
		}
	}
}

func TestGenerateAvoidsTakenNames(t *testing.T) {
	first, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	calls := 0
	second, err := Generate(func(name string) bool {
		calls++
		return name == first
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if second == first {
		t.Fatalf("taken name %q returned", first)
	}
	if calls == 0 {
		t.Fatal("taken was never consulted")
	}
}

func TestGenerateFallsBackToSuffix(t *testing.T) {
	name, err := Generate(func(name string) bool {
		return !regexp.MustCompile(`-\d+$`).MatchString(name)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !namePattern.MatchString(name) || !regexp.MustCompile(`-\d+$`).MatchString(name) {
		t.Fatalf("name = %q, want numeric suffix", name)
	}
}
