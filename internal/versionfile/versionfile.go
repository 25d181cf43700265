// Package versionfile rewrites version strings inside project descriptor
// and documentation files.
//
// Two file kinds are recognized:
//   - project descriptors (*.csproj): <AssemblyVersion> and <FileVersion>
//     elements
//   - README.md: a "version: X.Y.Z" line
//
// Any other file is read and written back unchanged. Text that does not
// match the expected pattern is left alone, so a file without a version
// marker comes out byte-identical.
package versionfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var (
	assemblyVersionRegex = regexp.MustCompile(`<AssemblyVersion>[\d.]+</AssemblyVersion>`)
	fileVersionRegex     = regexp.MustCompile(`<FileVersion>[\d.]+</FileVersion>`)
	readmeVersionRegex   = regexp.MustCompile(`version: [\d.]+`)
)

// Outcome reports what Update did to a file.
type Outcome int

const (
	// Missing means the file does not exist; nothing was written.
	Missing Outcome = iota

	// Unchanged means the file was rewritten with identical content.
	Unchanged

	// Changed means at least one version marker was replaced.
	Changed
)

// String returns a short description of the outcome.
func (o Outcome) String() string {
	switch o {
	case Missing:
		return "missing"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Rewrite applies the version substitutions for the file kind implied by
// path to content. It does not touch the filesystem.
//
// Replacement strings are literal, so a version can never be interpreted as
// a regexp group reference.
func Rewrite(path string, content []byte, version string) []byte {
	switch {
	case filepath.Ext(path) == ".csproj":
		content = assemblyVersionRegex.ReplaceAllLiteral(content,
			[]byte("<AssemblyVersion>"+version+"</AssemblyVersion>"))
		content = fileVersionRegex.ReplaceAllLiteral(content,
			[]byte("<FileVersion>"+version+"</FileVersion>"))
	case filepath.Base(path) == "README.md":
		content = readmeVersionRegex.ReplaceAllLiteral(content, []byte("version: "+version))
	}
	return content
}

// Update rewrites the version markers in the file at path.
//
// A missing file is not an error: Update returns Missing and the caller
// decides whether to warn. Otherwise the full content is written back
// unconditionally after substitution, preserving the file mode.
func Update(path, version string) (Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, nil
		}
		return Missing, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return Missing, fmt.Errorf("failed to read %s: %w", path, err)
	}

	updated := Rewrite(path, original, version)

	if err := os.WriteFile(path, updated, info.Mode().Perm()); err != nil {
		return Missing, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if string(updated) == string(original) {
		return Unchanged, nil
	}
	return Changed, nil
}
