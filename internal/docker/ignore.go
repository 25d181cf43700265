package docker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher/ignorefile"

	"github.com/shinji-kodama/release-automation/internal/archive"
)

const (
	dockerfileName   = "Dockerfile"
	dockerignoreName = ".dockerignore"
)

// ReadDockerignore returns the exclude patterns in contextDir/.dockerignore.
// A context without the file has no patterns.
func ReadDockerignore(contextDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(contextDir, dockerignoreName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", dockerignoreName, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in %s: %w", dockerignoreName, contextDir, err)
	}
	return patterns, nil
}

// contextTarOptions mirrors what `docker build` sends: everything except
// .dockerignore matches, with the Dockerfile and .dockerignore always
// present so the daemon can read them.
func contextTarOptions(contextDir string) (archive.TarOptions, error) {
	patterns, err := ReadDockerignore(contextDir)
	if err != nil {
		return archive.TarOptions{}, err
	}
	return archive.TarOptions{
		ExcludePatterns: patterns,
		Keep:            []string{dockerfileName, dockerignoreName},
	}, nil
}
