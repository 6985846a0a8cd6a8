package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(in string, args ...string) (string, error) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.Reader = strings.NewReader(in)
	err := app.Run(append([]string{"clusterfs"}, args...))
	return out.String(), err
}

func TestFormatWriteCat(t *testing.T) {
	t.Setenv("CLUSTERFS_CONFIG_FILE", "")
	img := filepath.Join(t.TempDir(), "vol.img")

	out, err := run("", "--image", img, "format", "--sectors", "256", "--block-size", "1024")
	require.NoError(t, err)
	assert.Contains(t, out, "256 sectors")
	assert.Contains(t, out, "of 1024 bytes")

	out, err = run("hello, volume\n", "--image", img, "write")
	require.NoError(t, err)
	assert.Equal(t, "inode 2: 14 bytes\n", out)

	out, err = run("", "--image", img, "cat", "2")
	require.NoError(t, err)
	assert.Equal(t, "hello, volume\n", out)

	out, err = run("", "--image", img, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "block size:   1024")
	assert.Contains(t, out, "sectors:      256")

	_, err = run("", "--image", img, "truncate", "2")
	require.NoError(t, err)
	out, err = run("", "--image", img, "cat", "2")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run("", "--image", img, "cat", "9")
	assert.Error(t, err, "free inode")
	_, err = run("", "--image", img, "cat", "two")
	assert.Error(t, err)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CLUSTERFS_CONFIG_FILE", "")
	img := filepath.Join(t.TempDir(), "vol.img")
	t.Setenv("CLUSTERFS_IMAGE", img)
	t.Setenv("CLUSTERFS_BLOCK_SIZE", "4096")
	t.Setenv("CLUSTERFS_SECTORS", "512")

	out, err := run("", "format", "--block-size", "2048")
	require.NoError(t, err)
	assert.Contains(t, out, "512 sectors", "sectors from the environment")
	assert.Contains(t, out, "of 2048 bytes", "flag beats the environment")

	out, err = run("", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "block size:   2048")

	_, err = run("", "format", "--block-size", "700")
	assert.Error(t, err)

	t.Setenv("CLUSTERFS_IMAGE", "")
	_, err = run("", "info")
	assert.Error(t, err, "no image configured")
}
