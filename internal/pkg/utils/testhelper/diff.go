package testhelper

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// fileNode is one file/dir in expected or actual directory.
type fileNode struct {
	isDir   bool
	absPath string
}

// fileNodeState in expected and actual directory.
type fileNodeState struct {
	relPath  string
	expected *fileNode
	actual   *fileNode
}

type tHelper interface {
	Helper()
}

// DirectoryContentsSame compares two directories, files must be byte-identical.
func DirectoryContentsSame(expectedFs afero.Fs, expectedDir string, actualFs afero.Fs, actualDir string) error {
	nodesState, err := compareDirectories(expectedFs, expectedDir, actualFs, actualDir)
	if err != nil {
		return err
	}

	var errs []string
	for _, node := range nodesState {
		switch {
		case node.actual == nil:
			errs = append(errs, fmt.Sprintf("only in expected \"%s\"", node.expected.absPath))
		case node.expected == nil:
			errs = append(errs, fmt.Sprintf("only in actual \"%s\"", node.actual.absPath))
		case node.actual.isDir != node.expected.isDir:
			if node.actual.isDir {
				errs = append(errs, fmt.Sprintf("\"%s\" is dir in actual, but file in expected", node.relPath))
			} else {
				errs = append(errs, fmt.Sprintf("\"%s\" is file in actual, but dir in expected", node.relPath))
			}
		case !node.actual.isDir:
			expectedContent, err := afero.ReadFile(expectedFs, node.expected.absPath)
			if err != nil {
				return err
			}
			actualContent, err := afero.ReadFile(actualFs, node.actual.absPath)
			if err != nil {
				return err
			}
			if !bytes.Equal(expectedContent, actualContent) {
				errs = append(errs, fmt.Sprintf("different content of the file \"%s\", expected %d bytes, actual %d bytes", node.relPath, len(expectedContent), len(actualContent)))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return errors.New("Directories are not same:\n" + strings.Join(errs, "\n"))
	}
	return nil
}

// AssertDirectoryContentsSame compares two directories, files must be byte-identical.
func AssertDirectoryContentsSame(t assert.TestingT, expectedFs afero.Fs, expectedDir string, actualFs afero.Fs, actualDir string) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}

	if err := DirectoryContentsSame(expectedFs, expectedDir, actualFs, actualDir); err != nil {
		return assert.Fail(t, err.Error())
	}
	return true
}

func compareDirectories(expectedFs afero.Fs, expectedDir string, actualFs afero.Fs, actualDir string) (map[string]*fileNodeState, error) {
	// relative path -> state
	hashMap := map[string]*fileNodeState{}

	err := afero.Walk(actualFs, actualDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == actualDir {
			return nil
		}
		relPath, err := filepath.Rel(actualDir, path)
		if err != nil {
			return err
		}
		hashMap[relPath] = &fileNodeState{relPath: relPath, actual: &fileNode{info.IsDir(), path}}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf(`cannot iterate over directory "%s": %w`, actualDir, err)
	}

	err = afero.Walk(expectedFs, expectedDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == expectedDir {
			return nil
		}
		relPath, err := filepath.Rel(expectedDir, path)
		if err != nil {
			return err
		}
		if _, ok := hashMap[relPath]; !ok {
			hashMap[relPath] = &fileNodeState{relPath: relPath}
		}
		hashMap[relPath].expected = &fileNode{info.IsDir(), path}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf(`cannot iterate over directory "%s": %w`, expectedDir, err)
	}

	return hashMap, nil
}
