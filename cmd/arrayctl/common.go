package main

import (
	"fmt"
	"path/filepath"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// usageError reports a malformed CLI invocation (exit code 1).
func usageError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// openSchema reads and decodes an array's on-disk schema file.
func openSchema(fs vfs.VFS, arrayDir string) (*schema.Schema, error) {
	path := filepath.Join(arrayDir, fragment.SchemaFileName)
	size, err := fs.FileSize(path)
	if err != nil {
		return nil, err
	}
	data, err := fs.BulkRead(path, []vfs.ByteRange{{Offset: 0, Length: size}})
	if err != nil {
		return nil, err
	}
	return schema.Unmarshal(data)
}

// writeFileAtomic writes data to path via a temp-file-then-rename, the
// same sequence fragment.Writer.Finalize uses to publish its sentinel.
func writeFileAtomic(fs vfs.VFS, path string, data []byte) error {
	tmp := path + ".tmp"
	h, err := fs.Open(tmp, vfs.OpenWrite)
	if err != nil {
		return err
	}
	if _, err := fs.Write(h, data); err != nil {
		_ = fs.Close(h)
		return err
	}
	if err := fs.Close(h); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

// parseSubarray parses a CLI subarray argument of the form
// "lo:hi,lo:hi,..." — one range per dimension, in domain order — against
// sch's domain, producing the Dimension slice a read/write query expects.
func parseSubarray(sch *schema.Schema, s string) ([]schema.Dimension, error) {
	parts := splitTopLevel(s, ',')
	if len(parts) != sch.Domain.Rank() {
		return nil, engineerr.New(engineerr.DomainError, "subarray has %d range(s), want %d (domain rank)", len(parts), sch.Domain.Rank())
	}
	out := make([]schema.Dimension, len(parts))
	for i, p := range parts {
		lo, hi, err := splitRange(p)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.DomainError, err, "subarray range %d (%q)", i, p)
		}
		d := sch.Domain.Dimensions[i]
		if lo < d.Lo || hi > d.Hi || hi < lo {
			return nil, engineerr.New(engineerr.DomainError, "subarray range %d [%d,%d] is outside dimension %q's domain [%d,%d]", i, lo, hi, d.Name, d.Lo, d.Hi)
		}
		d.Lo, d.Hi = lo, hi
		out[i] = d
	}
	return out, nil
}

func splitTopLevel(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// unravelDense converts a flat position (0..volume-1) within dims' shape
// back into per-dimension absolute coordinates, in the same row-major
// (last dimension fastest) or col-major (first dimension fastest) order
// fragment.densePosition ranks positions in.
func unravelDense(dims []schema.Dimension, colMajor bool, pos int64) []int64 {
	coords := make([]int64, len(dims))
	if colMajor {
		for i := 0; i < len(dims); i++ {
			span := dims[i].Span()
			coords[i] = dims[i].Lo + pos%span
			pos /= span
		}
	} else {
		for i := len(dims) - 1; i >= 0; i-- {
			span := dims[i].Span()
			coords[i] = dims[i].Lo + pos%span
			pos /= span
		}
	}
	return coords
}

func splitRange(s string) (lo, hi int64, err error) {
	parts := splitTopLevel(s, ':')
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lo:hi, got %q", s)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &lo); err != nil {
		return 0, 0, fmt.Errorf("invalid lo %q: %w", parts[0], err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &hi); err != nil {
		return 0, 0, fmt.Errorf("invalid hi %q: %w", parts[1], err)
	}
	return lo, hi, nil
}
