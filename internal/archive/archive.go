// Package archive packages directories into release bundles.
//
// ZipDir produces the versioned release archives uploaded to the release
// host. It includes regular files only.
//
// TarDir streams a directory as an uncompressed tar, which is the
// build-context format expected by the Docker Engine API. It honors
// .dockerignore-style exclude patterns (github.com/moby/patternmatcher,
// the matcher the docker CLI uses) and keeps symlinks as links.
//
// Both store paths relative to the source root with forward slashes so
// the archives are identical regardless of the host OS.
package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/moby/patternmatcher"
)

// ZipDir writes every regular file below srcDir into a new deflate-compressed
// zip at dstZip, replacing any existing file. It returns the number of files
// archived.
//
// The zip is written to a temporary file next to dstZip and renamed into
// place, so a failed run never leaves a truncated archive behind.
func ZipDir(srcDir, dstZip string) (int, error) {
	files, err := regularFiles(srcDir)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstZip), ".tmp-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive %s: %w", dstZip, err)
	}
	tmpName := tmp.Name()
	// Best-effort cleanup; after a successful rename this is a no-op.
	defer func() { _ = os.Remove(tmpName) }()

	zw := zip.NewWriter(tmp)
	for _, rel := range files {
		if err := addZipEntry(zw, srcDir, rel); err != nil {
			_ = zw.Close()
			_ = tmp.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to finalize archive %s: %w", dstZip, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive %s: %w", dstZip, err)
	}

	if err := os.Rename(tmpName, dstZip); err != nil {
		return 0, fmt.Errorf("failed to move archive into place at %s: %w", dstZip, err)
	}
	return len(files), nil
}

func addZipEntry(zw *zip.Writer, srcDir, rel string) error {
	full := filepath.Join(srcDir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", full, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header for %s: %w", full, err)
	}
	hdr.Name = rel
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", rel, err)
	}
	return copyFileTo(w, full)
}

// TarOptions controls which entries TarDir writes.
type TarOptions struct {
	// ExcludePatterns are .dockerignore-style patterns, relative to the
	// source directory. "!" patterns re-include paths.
	ExcludePatterns []string

	// Keep lists slash paths that are written even when a pattern
	// excludes them (the Dockerfile and .dockerignore themselves).
	Keep []string
}

// TarDir streams srcDir to w as an uncompressed tar, the way `docker build`
// packages a build context: directories, regular files and symlinks are
// written (symlinks as links, never followed), and paths matching
// opts.ExcludePatterns are left out.
func TarDir(srcDir string, w io.Writer, opts TarOptions) error {
	pm, err := patternmatcher.New(opts.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("invalid exclude patterns: %w", err)
	}
	keep := make(map[string]bool, len(opts.Keep))
	for _, k := range opts.Keep {
		keep[k] = true
	}

	tw := tar.NewWriter(w)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		if !keep[name] && len(opts.ExcludePatterns) > 0 {
			excluded, err := pm.MatchesOrParentMatches(rel)
			if err != nil {
				return fmt.Errorf("failed to match %s: %w", name, err)
			}
			if excluded {
				// A "!" pattern may re-include something below an
				// excluded directory, so only prune when there is none.
				if d.IsDir() && !pm.Exclusions() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		return addTarEntry(tw, path, name, d)
	})
	if err != nil {
		return fmt.Errorf("failed to write build context for %s: %w", srcDir, err)
	}
	return tw.Close()
}

func addTarEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		// Sockets, devices and pipes have no place in a build context.
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", path, err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to add %s to build context: %w", name, err)
	}
	if hdr.Typeflag == tar.TypeReg {
		return copyFileTo(tw, path)
	}
	return nil
}

// regularFiles lists the regular files below root as sorted slash paths
// relative to root. Directories, symlinks and other special files are
// skipped.
func regularFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func copyFileTo(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}
