package testhelper

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryContentsSame(t *testing.T) {
	t.Parallel()
	expected := afero.NewMemMapFs()
	actual := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(expected, "/dir/file1.bin", []byte{0, 1, 2}, 0o644))
	require.NoError(t, afero.WriteFile(expected, "/dir/sub/file2.txt", []byte("foo"), 0o644))
	require.NoError(t, afero.WriteFile(actual, "/out/file1.bin", []byte{0, 1, 2}, 0o644))
	require.NoError(t, afero.WriteFile(actual, "/out/sub/file2.txt", []byte("foo"), 0o644))
	assert.NoError(t, DirectoryContentsSame(expected, "/dir", actual, "/out"))

	// Different content
	require.NoError(t, afero.WriteFile(actual, "/out/file1.bin", []byte{0, 1, 3}, 0o644))
	err := DirectoryContentsSame(expected, "/dir", actual, "/out")
	if assert.Error(t, err) {
		assert.Equal(t, "Directories are not same:\ndifferent content of the file \"file1.bin\", expected 3 bytes, actual 3 bytes", err.Error())
	}

	// Only in actual
	require.NoError(t, afero.WriteFile(actual, "/out/file1.bin", []byte{0, 1, 2}, 0o644))
	require.NoError(t, afero.WriteFile(actual, "/out/file3.txt", []byte("bar"), 0o644))
	err = DirectoryContentsSame(expected, "/dir", actual, "/out")
	if assert.Error(t, err) {
		assert.Equal(t, "Directories are not same:\nonly in actual \"/out/file3.txt\"", err.Error())
	}
}
