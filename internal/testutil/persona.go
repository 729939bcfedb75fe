package testutil

import (
	"testing"

	"github.com/zhouzirui/xiaolang/backend/internal/model/persona"
)

// Personas returns a store holding the built-in personas.
func Personas(t testing.TB) *persona.MemoryStore {
	t.Helper()
	store, err := persona.NewMemoryStore(persona.Seed())
	if err != nil {
		t.Fatalf("seed personas: %v", err)
	}
	return store
}
