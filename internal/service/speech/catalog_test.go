package speech

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCatalogBuiltin(t *testing.T) {
	c := LoadCatalog("", nil)
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("catalog never became ready")
	}
	if len(c.Voices()) == 0 {
		t.Fatal("expected built-in voices")
	}
	if _, ok := c.Lookup("en_female_amy_jupiter_bigtts"); !ok {
		t.Fatal("expected default English voice in catalog")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	data := []byte("voices:\n  - name: Swara\n    id: hi_female_swara\n    lang: hi-IN\n  - name: missing id\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c := LoadCatalog(path, nil)
	<-c.Ready()
	voices := c.Voices()
	if len(voices) != 1 || voices[0].ID != "hi_female_swara" {
		t.Fatalf("unexpected voices %+v", voices)
	}
}

func TestParseCatalogRejectsGarbage(t *testing.T) {
	if _, err := ParseCatalog([]byte("voices: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
