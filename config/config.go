// Package config loads tool settings from an optional YAML file overlaid by
// CLUSTERFS_* environment variables.
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-clusterfs/disk"
	"github.com/mit-pdos/go-clusterfs/util"
)

const (
	EnvPrefix = "CLUSTERFS"

	DefaultBlockSize uint64 = 512
	DefaultSectors   uint64 = 128
)

type Config struct {
	// Image is the path of the device image file.
	Image string `split_words:"true" yaml:"image"`

	// BlockSize and Sectors are used when formatting a new image.
	BlockSize uint64 `split_words:"true" yaml:"blockSize"`
	Sectors   uint64 `split_words:"true" yaml:"sectors"`

	// Debug is the util.DPrintf threshold.
	Debug uint64 `split_words:"true" yaml:"debug"`
}

func Default() *Config {
	return &Config{
		BlockSize: DefaultBlockSize,
		Sectors:   DefaultSectors,
	}
}

// Load starts from Default, applies the YAML file at path if path is
// non-empty (falling back to $CLUSTERFS_CONFIG_FILE), then the environment.
// A missing file named by the environment is ignored; one named by path is
// an error.
func Load(path string) (*Config, error) {
	c := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		data, err := ioutil.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(data, c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.BlockSize == 0 || c.BlockSize%disk.SectorSize != 0 {
		return fmt.Errorf("config: block size %d is not a multiple of %d",
			c.BlockSize, disk.SectorSize)
	}
	if c.Sectors == 0 {
		return fmt.Errorf("config: sectors must be positive")
	}
	return nil
}

// Apply installs process-wide settings.
func (c *Config) Apply() {
	util.Debug = c.Debug
}
