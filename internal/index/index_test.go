package index

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/scan"
)

func descriptor(t *testing.T, id, version string, deps ...addon.Dependency) addon.Descriptor {
	t.Helper()
	return addon.Descriptor{
		ID:              id,
		Name:            strings.ToUpper(id),
		Version:         addon.MustParseVersion(version),
		Dependencies:    deps,
		ExtensionPoints: []string{"xbmc.addon.metadata"},
		Checksum:        checksum.SumBytes(id, []byte(version)),
		SourcePath:      "/src/" + id,
	}
}

func dep(t *testing.T, id, constraint string, optional bool) addon.Dependency {
	t.Helper()
	c, err := addon.KodiGrammar{}.Parse(constraint)
	if err != nil {
		t.Fatal(err)
	}
	return addon.Dependency{ID: id, Constraint: c, Optional: optional}
}

func TestRender_RoundTrip(t *testing.T) {
	ds := []addon.Descriptor{
		descriptor(t, "bar", "2.0.0"),
		descriptor(t, "foo", "1.0.0", dep(t, "bar", ">=1.0", false), dep(t, "xbmc.python", "", true)),
	}
	a, err := Render(ds)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(a.Document, []byte(header)) {
		t.Fatalf("missing XML header: %s", a.Document)
	}

	ids, err := IDs(a.Document)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"bar", "foo"}) {
		t.Fatalf("IDs: got %v", ids)
	}

	entries, err := Parse(a.Document)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(entries, a.Entries) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", entries, a.Entries)
	}
	if entries[1].Dependencies[0].Constraint != ">=1.0" || !entries[1].Dependencies[1].Optional {
		t.Fatalf("dependencies not preserved: %+v", entries[1].Dependencies)
	}
	if a.Record.Addons["foo"] != ds[1].Checksum.Hex() {
		t.Fatalf("record checksum for foo: %s", a.Record.Addons["foo"])
	}
	if a.Record.IndexChecksum != checksum.SumBytes(IndexFile, a.Document).Hex() {
		t.Fatalf("index checksum does not cover the document")
	}
}

func TestRender_Deterministic(t *testing.T) {
	ds := []addon.Descriptor{descriptor(t, "a", "1.0.0"), descriptor(t, "b", "1.0.0")}
	first, err := Render(ds)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Render(ds)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Document, second.Document) || !bytes.Equal(first.RecordJSON, second.RecordJSON) {
		t.Fatalf("rendering is not deterministic")
	}
}

func TestRender_Escaping(t *testing.T) {
	d := descriptor(t, "a", "1.0.0")
	d.Name = `Tom & "Jerry" <3`
	a, err := Render([]addon.Descriptor{d})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := Parse(a.Document)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Name != d.Name {
		t.Fatalf("name not preserved: %q", entries[0].Name)
	}
}

func TestRender_Empty(t *testing.T) {
	a, err := Render(nil)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := Parse(a.Document)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestRender_RejectsUnsorted(t *testing.T) {
	for _, ds := range [][]addon.Descriptor{
		{descriptor(t, "b", "1.0.0"), descriptor(t, "a", "1.0.0")},
		{descriptor(t, "a", "1.0.0"), descriptor(t, "a", "2.0.0")},
	} {
		if _, err := Render(ds); !errors.Is(err, ErrUnsorted) {
			t.Fatalf("expected ErrUnsorted, got %v", err)
		}
	}
	if _, err := Render([]addon.Descriptor{{}}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestParse_WrongRoot(t *testing.T) {
	if _, err := Parse([]byte(`<repository/>`)); err == nil {
		t.Fatalf("expected error for wrong root element")
	}
}

func TestPublishLoad(t *testing.T) {
	out := filepath.Join(t.TempDir(), "repo")
	a, err := Render([]addon.Descriptor{descriptor(t, "a", "1.0.0"), descriptor(t, "b", "1.1.0")})
	if err != nil {
		t.Fatal(err)
	}
	if err := Publish(out, a, true); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cat, err := Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cat.IDs(), []string{"a", "b"}) {
		t.Fatalf("IDs: %v", cat.IDs())
	}
	if e, ok := cat.Lookup("b"); !ok || e.Version != "1.1.0" {
		t.Fatalf("Lookup(b): %+v %v", e, ok)
	}
	if _, ok := cat.Lookup("c"); ok {
		t.Fatalf("Lookup(c) should fail")
	}
	if string(cat.MD5) != string(a.MD5) || len(cat.MD5) != 32 {
		t.Fatalf("md5: got %q", cat.MD5)
	}

	// Republishing without the MD5 companion replaces the whole directory.
	if err := Publish(out, a, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, MD5File)); !os.IsNotExist(err) {
		t.Fatalf("stale md5 left behind: %v", err)
	}
	if _, err := os.Stat(out + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("backup left behind: %v", err)
	}
	if cat, err = Load(out); err != nil || cat.MD5 != nil {
		t.Fatalf("Load without md5: %v", err)
	}
}

func TestLoad_DetectsTampering(t *testing.T) {
	out := filepath.Join(t.TempDir(), "repo")
	a, err := Render([]addon.Descriptor{descriptor(t, "a", "1.0.0")})
	if err != nil {
		t.Fatal(err)
	}
	if err := Publish(out, a, true); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(out, IndexFile)
	tampered := bytes.Replace(a.Document, []byte(`version="1.0.0"`), []byte(`version="9.0.0"`), 1)
	if err := os.WriteFile(p, tampered, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(out); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestBuildIndex(t *testing.T) {
	root := t.TempDir()
	for id, v := range map[string]string{"foo": "1.0.0", "bar": "2.0.0"} {
		dir := filepath.Join(root, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		xml := `<addon id="` + id + `" version="` + v + `"><extension point="xbmc.addon.metadata"/></addon>`
		if err := os.WriteFile(filepath.Join(dir, "addon.xml"), []byte(xml), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	b, err := BuildIndex(context.Background(), BuildOptions{Root: root})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	ids, err := IDs(b.Artifacts.Document)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"bar", "foo"}) {
		t.Fatalf("ids: %v", ids)
	}

	again, err := BuildIndex(context.Background(), BuildOptions{Root: root, Scan: scan.Options{Parallelism: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Artifacts.Document, again.Artifacts.Document) {
		t.Fatalf("rebuild of unchanged tree is not byte-identical")
	}
}

func TestBuildIndex_DuplicateWritesNothing(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"one", "two"} {
		p := filepath.Join(root, dir)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(p, "addon.xml"), []byte(`<addon id="x" version="1.0.0"/>`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := BuildIndex(context.Background(), BuildOptions{Root: root}); !errors.Is(err, scan.ErrDuplicateAddonID) {
		t.Fatalf("expected ErrDuplicateAddonID, got %v", err)
	}
}

func TestAcquireLock(t *testing.T) {
	out := filepath.Join(t.TempDir(), "repo")
	unlock, err := AcquireLock(out, time.Second)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := AcquireLock(out, 300*time.Millisecond); err == nil {
		t.Fatalf("second lock should time out while the first is held")
	}
	unlock()
	unlock2, err := AcquireLock(out, time.Second)
	if err != nil {
		t.Fatalf("AcquireLock after unlock: %v", err)
	}
	unlock2()
}

func TestBuildIndex_ExampleRepository(t *testing.T) {
	root := t.TempDir()
	manifests := map[string]string{
		"addon.foo": `<addon id="foo" version="1.0.0"/>`,
		"addon.bar": `<addon id="bar" version="2.1.0"><requires><import addon="foo" version=">=1.0.0"/></requires></addon>`,
	}
	for dir, xml := range manifests {
		p := filepath.Join(root, dir)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(p, "addon.xml"), []byte(xml), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	b, err := BuildIndex(context.Background(), BuildOptions{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	entries := b.Artifacts.Entries
	if len(entries) != 2 || entries[0].ID != "bar" || entries[1].ID != "foo" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Checksum == entries[1].Checksum {
		t.Fatalf("each addon should carry its own checksum")
	}
	want := []EntryDependency{{ID: "foo", Constraint: ">=1.0.0"}}
	if !reflect.DeepEqual(entries[0].Dependencies, want) {
		t.Fatalf("bar dependencies: %+v", entries[0].Dependencies)
	}
	if !bytes.Contains(b.Artifacts.Document, []byte(`<import addon="foo" version="&gt;=1.0.0"></import>`)) {
		t.Fatalf("constraint not written verbatim:\n%s", b.Artifacts.Document)
	}
}

func TestAtomicSwap_RefusesForeignDirectory(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "addons")
	if err := os.MkdirAll(filepath.Join(dest, "plugin.foo"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(root, "stage")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := AtomicSwap(src, dest); !errors.Is(err, ErrNotIndexDir) {
		t.Fatalf("expected ErrNotIndexDir, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "plugin.foo")); err != nil {
		t.Fatalf("destination modified: %v", err)
	}

	// A foreign <dest>.bak is protected the same way.
	out := filepath.Join(root, "repo")
	if err := os.MkdirAll(out+".bak", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out+".bak", "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicSwap(src, out); !errors.Is(err, ErrNotIndexDir) {
		t.Fatalf("expected ErrNotIndexDir for foreign backup, got %v", err)
	}
}

func TestPublish_StaleBackupIsNotFatal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "repo")
	a, err := Render([]addon.Descriptor{descriptor(t, "a", "1.0.0")})
	if err != nil {
		t.Fatal(err)
	}
	if err := Publish(out, a, false); err != nil {
		t.Fatal(err)
	}

	orig := cleanup
	t.Cleanup(func() { cleanup = orig })
	cleanup = func(p string) error {
		if _, err := os.Stat(p); err == nil {
			return errors.New("file in use")
		}
		return nil
	}

	b, err := Render([]addon.Descriptor{descriptor(t, "a", "2.0.0")})
	if err != nil {
		t.Fatal(err)
	}
	err = Publish(out, b, false)
	if !errors.Is(err, ErrStaleBackup) {
		t.Fatalf("expected ErrStaleBackup, got %v", err)
	}
	cat, err := Load(out)
	if err != nil {
		t.Fatalf("new index not live: %v", err)
	}
	if e, _ := cat.Lookup("a"); e.Version != "2.0.0" {
		t.Fatalf("expected the new index, got version %s", e.Version)
	}
}
