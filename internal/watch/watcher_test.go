package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New(Config{BaseDir: t.TempDir(), Ignore: []string{"[unclosed"}}); err == nil {
		t.Fatalf("expected error for invalid ignore pattern")
	}
}

func TestIsIgnored(t *testing.T) {
	w, err := New(Config{BaseDir: t.TempDir(), Ignore: []string{"repo", "repo/**", ".zips/**"}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })

	cases := map[string]bool{
		"repo/addons.xml":          true,
		".zips/abc/foo-1.0.0.zip":  true,
		"plugin.foo/.git/HEAD":     true,
		"plugin.foo/main.py.swp":   true,
		"plugin.foo/main.py":       false,
		"plugin.foo/resources/a.x": false,
	}
	for rel, want := range cases {
		if got := w.isIgnored(rel); got != want {
			t.Fatalf("isIgnored(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestRun_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "plugin.foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	calls := make(chan []string, 4)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			calls <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, name := range []string{"addon.xml", "main.py"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case changed := <-calls:
		if !slices.Contains(changed, "plugin.foo/addon.xml") {
			t.Fatalf("unexpected changed set %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("OnChange not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("second Run should fail")
	}
}
