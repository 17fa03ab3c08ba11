package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "proxy.env")
	content := "# comment\nexport OPENAI_API_KEY=sk-1\nBASE=\"http://x\"\nQUOTED='single'\n\nINVALID\n"
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadEnvFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"BASE=http://x", "OPENAI_API_KEY=sk-1", "QUOTED=single"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	p2 := filepath.Join(dir, "b.env")
	if err := os.WriteFile(p2, []byte("BASE=http://y\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	all, err := LoadEnvFiles([]string{p, p2})
	if err != nil {
		t.Fatalf("load files: %v", err)
	}
	if all[len(all)-1] != "BASE=http://y" {
		t.Fatalf("later file should come last: %v", all)
	}
	if _, err := LoadEnvFiles([]string{filepath.Join(dir, "missing.env")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
