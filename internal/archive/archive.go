// Package archive implements the fixed-size, compressed tar archives the
// BlockArchiver (C2) seals and the LoadPipeline (C3) consumes. Filenames
// follow spec.md §6's "<lo>_<hi>.tar.<codec>" convention; zstd (klauspost/
// compress, already part of the teacher's dependency surface via its Arrow
// and gRPC stack) stands in for the bzip2-style codec the spec names,
// since compress/bzip2 in the standard library is decode-only.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// Extension is the codec suffix used for sealed archives.
const Extension = ".tar.zst"

var filenamePattern = regexp.MustCompile(`^(\d+)_(\d+)\.tar\.zst$`)

// Bounds is the inclusive [Lo, Hi] round range one archive covers.
type Bounds struct {
	Lo, Hi uint64
}

// FileName renders the canonical "<lo>_<hi>.tar.zst" filename for bounds.
func (b Bounds) FileName() string {
	return fmt.Sprintf("%d_%d%s", b.Lo, b.Hi, Extension)
}

// ParseFileName extracts Bounds from a filename produced by FileName. It
// returns ok=false for any name that doesn't match the archive convention,
// so callers can silently skip unrelated files in a directory listing.
func ParseFileName(name string) (Bounds, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Bounds{}, false
	}
	lo, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Bounds{}, false
	}
	hi, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Bounds{}, false
	}
	if hi < lo {
		return Bounds{}, false
	}
	return Bounds{Lo: lo, Hi: hi}, true
}

// BlockEntry is one round's raw msgpack envelope bytes, as they appear
// inside a sealed archive.
type BlockEntry struct {
	Round uint64
	Raw   []byte
}

// entryName renders the tar entry name for a round: zero-padded so a tar
// listing sorts in round order.
func entryName(round uint64) string {
	return fmt.Sprintf("%020d.block", round)
}

// Write seals entries (which must be contiguous and sorted by round) into
// a new "<dir>/<lo>_<hi>.tar.zst" file and returns its path. The write
// happens to a temp file that is renamed into place only once fully
// flushed, so a reader never observes a partially written archive.
func Write(dir string, entries []BlockEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("archive: cannot write an empty archive")
	}
	bounds := Bounds{Lo: entries[0].Round, Hi: entries[len(entries)-1].Round}
	for i, e := range entries {
		want := bounds.Lo + uint64(i)
		if e.Round != want {
			return "", fmt.Errorf("archive: entries not contiguous: entry %d has round %d, want %d", i, e.Round, want)
		}
	}

	final := filepath.Join(dir, bounds.FileName())
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("archive: creating temp file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("archive: creating zstd writer: %w", err)
	}

	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{
			Name: entryName(e.Round),
			Mode: 0644,
			Size: int64(len(e.Raw)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("archive: writing tar header for round %d: %w", e.Round, err)
		}
		if _, err := tw.Write(e.Raw); err != nil {
			return "", fmt.Errorf("archive: writing tar body for round %d: %w", e.Round, err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("archive: closing tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("archive: closing zstd writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("archive: syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("archive: closing temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("archive: renaming into place: %w", err)
	}
	return final, nil
}

// Read decodes an archive file back into its BlockEntry slice, in round
// order.
func Read(path string) ([]BlockEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: creating zstd reader for %s: %w", path, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var entries []BlockEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: reading tar header in %s: %w", path, err)
		}
		round, err := roundFromEntryName(hdr.Name)
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", path, err)
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("archive: reading tar body for %s in %s: %w", hdr.Name, path, err)
		}
		entries = append(entries, BlockEntry{Round: round, Raw: raw})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Round < entries[j].Round })
	return entries, nil
}

func roundFromEntryName(name string) (uint64, error) {
	base := filepath.Base(name)
	const suffix = ".block"
	if len(base) <= len(suffix) || base[len(base)-len(suffix):] != suffix {
		return 0, fmt.Errorf("unexpected tar entry name %q", name)
	}
	digits := base[:len(base)-len(suffix)]
	round, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected tar entry name %q: %w", name, err)
	}
	return round, nil
}

// ListDir returns the Bounds of every archive file in dir, sorted by Lo.
// Non-matching filenames are skipped.
func ListDir(dir string) ([]Bounds, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: listing %s: %w", dir, err)
	}
	var all []Bounds
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if b, ok := ParseFileName(e.Name()); ok {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Lo < all[j].Lo })
	return all, nil
}
