package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// expandHome replaces a leading ~ with the current user's home directory.
// Paths are shell-quoted later, so the shell never expands it.
func expandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// collectFiles expands ~ and glob patterns in a file group. A pattern that
// matches nothing is an error.
func collectFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		pattern = expandHome(pattern)
		if !strings.ContainsAny(pattern, "*?[") {
			files = append(files, pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("expanding %s: %w", pattern, os.ErrNotExist)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// copyInto copies each file into dir under its base name.
func copyInto(dir string, patterns []string) error {
	files, err := collectFiles(patterns)
	if err != nil {
		return err
	}
	for _, src := range files {
		if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return fmt.Errorf("copying %s: %w", src, err)
		}
	}
	return nil
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
