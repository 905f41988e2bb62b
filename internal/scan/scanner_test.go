package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeAddon(t *testing.T, root, dir, manifest string, extra map[string]string) string {
	t.Helper()
	p := filepath.Join(root, dir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(p, "addon.xml"), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range extra {
		full := filepath.Join(p, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func addonXML(id, version string) string {
	return fmt.Sprintf(`<addon id="%s" version="%s"/>`, id, version)
}

func TestScan_SortedByID(t *testing.T) {
	root := t.TempDir()
	// Directory names deliberately disagree with id order.
	writeAddon(t, root, "a-dir", addonXML("zeta", "1.0.0"), nil)
	writeAddon(t, root, "b-dir", addonXML("alpha", "1.0.0"), nil)
	writeAddon(t, root, "c-dir", addonXML("mid", "1.0.0"), nil)

	res, err := New(Options{Parallelism: 2}).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var ids []string
	for _, d := range res.Descriptors {
		ids = append(ids, d.ID)
	}
	if fmt.Sprint(ids) != "[alpha mid zeta]" {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestScan_PartialFailure(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "bar", addonXML("bar", "2.0.0"), map[string]string{"main.py": "x"})
	writeAddon(t, root, "foo", addonXML("foo", "1.0.0"), nil)
	broken := writeAddon(t, root, "noid", `<addon version="1.0.0"/>`, nil)
	writeAddon(t, root, "docs", "", map[string]string{"README": "not an addon"})

	res, err := New(Options{}).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Descriptors) != 2 || res.Descriptors[0].ID != "bar" || res.Descriptors[1].ID != "foo" {
		t.Fatalf("unexpected descriptors: %+v", res.Descriptors)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", res.Failures)
	}
	f := res.Failures[0]
	if f.Path != broken || f.Kind != KindMissingField {
		t.Fatalf("unexpected failure: %s", f)
	}
	if len(res.Skipped) != 1 || filepath.Base(res.Skipped[0]) != "docs" {
		t.Fatalf("expected docs to be skipped, got %v", res.Skipped)
	}
}

func TestScan_FailureKinds(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "malformed", `<addon id="x" version="1.0.0">`, nil)
	writeAddon(t, root, "version", addonXML("v", "latest"), nil)
	writeAddon(t, root, "dep", `<addon id="d" version="1.0.0"><requires><import/></requires></addon>`, nil)

	res, err := New(Options{}).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]Kind{}
	for _, f := range res.Failures {
		got[filepath.Base(f.Path)] = f.Kind
	}
	want := map[string]Kind{
		"malformed": KindMalformedManifest,
		"version":   KindInvalidVersion,
		"dep":       KindMalformedDependency,
	}
	for dir, kind := range want {
		if got[dir] != kind {
			t.Fatalf("%s: got kind %q, want %q", dir, got[dir], kind)
		}
	}
}

func TestScan_DuplicateID(t *testing.T) {
	root := t.TempDir()
	a := writeAddon(t, root, "one", addonXML("same.id", "1.0.0"), nil)
	b := writeAddon(t, root, "two", addonXML("same.id", "2.0.0"), nil)

	_, err := New(Options{}).Scan(context.Background(), root)
	if !errors.Is(err, ErrDuplicateAddonID) {
		t.Fatalf("expected ErrDuplicateAddonID, got %v", err)
	}
	var de *DuplicateIDError
	if !errors.As(err, &de) || de.ID != "same.id" || de.PathA != a || de.PathB != b {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestScan_FailOnError(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "good", addonXML("good", "1.0.0"), nil)
	writeAddon(t, root, "bad", addonXML("bad", ""), nil)

	_, err := New(Options{FailOnError: true}).Scan(context.Background(), root)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
	var be *BuildFailedError
	if !errors.As(err, &be) || len(be.Failures) != 1 || be.Failures[0].Kind != KindMissingField {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScan_Empty(t *testing.T) {
	res, err := New(Options{}).Scan(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Descriptors) != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	if _, err := New(Options{}).Scan(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		writeAddon(t, root, fmt.Sprintf("a%d", i), addonXML(fmt.Sprintf("a%d", i), "1.0.0"), nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Options{Parallelism: 1}).Scan(ctx, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScan_ChecksumIgnoresExcludes(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "a", addonXML("a", "1.0.0"), nil)
	opts := Options{Excludes: []string{"*.pyc"}}

	before, err := New(opts).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "x.pyc"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, err := New(opts).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if before.Descriptors[0].Checksum != after.Descriptors[0].Checksum {
		t.Fatalf("excluded file changed the checksum")
	}

	if err := os.WriteFile(filepath.Join(root, "a", "main.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := New(opts).Scan(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if changed.Descriptors[0].Checksum == before.Descriptors[0].Checksum {
		t.Fatalf("new file did not change the checksum")
	}
}

func TestScanAddon(t *testing.T) {
	root := t.TempDir()
	dir := writeAddon(t, root, "one", addonXML("one", "1.0.0"), nil)
	d, err := New(Options{}).ScanAddon(dir)
	if err != nil || d.ID != "one" {
		t.Fatalf("ScanAddon: %+v, %v", d, err)
	}
	if _, err := New(Options{}).ScanAddon(root); err == nil {
		t.Fatalf("expected error for a directory without a manifest")
	}
}
