package archive

import (
	"path/filepath"
	"testing"
)

func TestFileNameRoundTrip(t *testing.T) {
	b := Bounds{Lo: 1000, Hi: 1999}
	name := b.FileName()
	if name != "1000_1999.tar.zst" {
		t.Fatalf("FileName() = %q", name)
	}
	got, ok := ParseFileName(name)
	if !ok {
		t.Fatal("ParseFileName reported not-ok")
	}
	if got != b {
		t.Fatalf("ParseFileName() = %+v, want %+v", got, b)
	}
}

func TestParseFileNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"foo.txt", "1000_999.tar.zst", "abc_def.tar.zst", "1000_1999.tar.gz"} {
		if _, ok := ParseFileName(name); ok {
			t.Errorf("ParseFileName(%q) should not parse", name)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	entries := []BlockEntry{
		{Round: 100, Raw: []byte{0x01, 0x02}},
		{Round: 101, Raw: []byte{0xc1}},
		{Round: 102, Raw: []byte{}},
	}
	path, err := Write(dir, entries)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "100_102.tar.zst" {
		t.Fatalf("path = %s", path)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i].Round != e.Round {
			t.Errorf("entry %d round = %d, want %d", i, got[i].Round, e.Round)
		}
		if string(got[i].Raw) != string(e.Raw) {
			t.Errorf("entry %d raw = %v, want %v", i, got[i].Raw, e.Raw)
		}
	}
}

func TestWriteRejectsNonContiguous(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, []BlockEntry{{Round: 1, Raw: []byte{1}}, {Round: 3, Raw: []byte{2}}})
	if err == nil {
		t.Fatal("expected error for non-contiguous rounds")
	}
}

func TestWriteRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, nil); err == nil {
		t.Fatal("expected error for empty entries")
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, []BlockEntry{{Round: 0, Raw: []byte{1}}, {Round: 1, Raw: []byte{2}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(dir, []BlockEntry{{Round: 2, Raw: []byte{3}}, {Round: 3, Raw: []byte{4}}}); err != nil {
		t.Fatal(err)
	}
	bounds, err := ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(bounds) != 2 {
		t.Fatalf("len(bounds) = %d, want 2", len(bounds))
	}
	if bounds[0].Lo != 0 || bounds[1].Lo != 2 {
		t.Fatalf("bounds = %+v", bounds)
	}
}

func TestListDirMissingDirReturnsEmpty(t *testing.T) {
	bounds, err := ListDir(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(bounds) != 0 {
		t.Fatalf("bounds = %+v, want empty", bounds)
	}
}
