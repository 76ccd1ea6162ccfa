// Package identity derives stable, human readable document ids from
// filesystem paths.
//
// An id has the shape "<filename>-<hash>" where filename is the base name of
// the canonical path with unsafe runes replaced by '-', and hash is the first
// eight hex digits of a 64-bit xxhash of the canonical path. The same path
// yields the same id across process restarts, so a browser tab can reconnect
// by URL after the server comes back.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// UnknownName replaces the filename part when a path has no base name.
const UnknownName = "unknown"

// HashLength is the number of hash characters appended to an id.
const HashLength = 8

// Canonicalize resolves path to an absolute path with symlinks evaluated.
// A path that does not exist yet has the symlinks of its nearest existing
// ancestor evaluated, so it canonicalizes the same before and after the file
// is created. The raw input is returned when no absolute path can be built.
func Canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return resolveExistingAncestor(abs)
}

// resolveExistingAncestor evaluates symlinks in the longest existing prefix
// of abs and joins the missing tail back on.
func resolveExistingAncestor(abs string) string {
	dir, rest := abs, ""
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(resolved, rest)
		}
		dir = parent
	}
}

// DeriveID returns the document id for path. It never fails.
func DeriveID(path string) string {
	canonical := Canonicalize(path)
	return fmt.Sprintf("%s-%s", safeName(path, canonical), shortHash(canonical))
}

func safeName(raw, canonical string) string {
	if !hasFileName(raw) {
		return UnknownName
	}
	name := filepath.Base(canonical)
	if !hasFileName(name) {
		return UnknownName
	}

	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, name)
	return name
}

// hasFileName reports whether path names something below a directory, as
// opposed to "", ".", ".." or a filesystem root.
func hasFileName(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	base := filepath.Base(path)
	if base == "." || base == ".." {
		return false
	}
	// Base of a root is the separator itself.
	return !os.IsPathSeparator(base[len(base)-1])
}

func shortHash(canonical string) string {
	sum := xxhash.Sum64String(canonical)
	return fmt.Sprintf("%016x", sum)[:HashLength]
}
