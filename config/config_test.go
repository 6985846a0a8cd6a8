package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-clusterfs/util"
)

func writeFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "clusterfs.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Setenv("CLUSTERFS_CONFIG_FILE", "")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestFileThenEnv(t *testing.T) {
	path := writeFile(t, "image: vol.img\nblockSize: 1024\nsectors: 4096\ndebug: 2\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{Image: "vol.img", BlockSize: 1024, Sectors: 4096, Debug: 2}, c)

	t.Setenv("CLUSTERFS_BLOCK_SIZE", "4096")
	t.Setenv("CLUSTERFS_IMAGE", "other.img")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), c.BlockSize)
	assert.Equal(t, "other.img", c.Image)
	assert.Equal(t, uint64(4096), c.Sectors, "file value kept")
}

func TestConfigFileFromEnv(t *testing.T) {
	path := writeFile(t, "sectors: 256\n")
	t.Setenv("CLUSTERFS_CONFIG_FILE", path)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(256), c.Sectors)

	t.Setenv("CLUSTERFS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load("")
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("CLUSTERFS_CONFIG_FILE", "")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "blockSize: 512\nbogus: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeFile(t, "blockSize: 700\n"))
	assert.Error(t, err)

	t.Setenv("CLUSTERFS_SECTORS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	old := util.Debug
	defer func() { util.Debug = old }()
	c := Default()
	c.Debug = 3
	c.Apply()
	assert.Equal(t, uint64(3), util.Debug)
}
