package onnx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFindModel(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindModel(dir); !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}

	nested := filepath.Join(dir, "onnx")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(nested, "model.onnx")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindModel(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	top := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(top, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := FindModel(dir); got != top {
		t.Fatalf("top-level model should win, got %q", got)
	}
	if got, _ := FindModel(top); got != top {
		t.Fatalf("file path should resolve to itself, got %q", got)
	}
}

func TestOpenValidatesBeforeRuntime(t *testing.T) {
	if _, err := Open(Config{ModelPath: t.TempDir()}); err == nil {
		t.Fatalf("expected vocab size error")
	}
	if _, err := Open(Config{ModelPath: t.TempDir(), VocabSize: 8}); !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}
}
