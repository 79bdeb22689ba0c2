// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	toml "github.com/pelletier/go-toml"

	nvdstore "github.com/molecula/nvdstore"
	"github.com/molecula/nvdstore/errors"
)

// Config holds the configuration shared by the nvdstore commands.
type Config struct {
	// DataDir is where downloaded feed files are cached.
	DataDir string `toml:"data-dir"`

	// Storage is where the shard store lives. Empty means a temporary
	// directory per invocation.
	Storage string `toml:"storage"`

	// Adapter selects the storage backend ("default" or "bolt").
	Adapter string `toml:"adapter"`

	// ShardSize is the number of documents per shard.
	ShardSize int `toml:"shard-size"`

	// Feeds is the set of feed names to operate on. Empty means all
	// published feeds.
	Feeds []string `toml:"feeds"`

	// FetchConcurrency bounds parallel feed downloads.
	FetchConcurrency int `toml:"fetch-concurrency"`

	// LogPath directs log output to a reopenable file instead of stderr.
	LogPath string `toml:"log-path"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	return &Config{
		DataDir:          ".nvdstore/data",
		Adapter:          "default",
		ShardSize:        nvdstore.DefaultShardSize,
		FetchConcurrency: 4,
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	conf := NewConfig()
	if path == "" {
		return conf, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := toml.Unmarshal(buf, conf); err != nil {
		return nil, errors.Newf(errors.ErrConfiguration, "parsing config file %s: %v", path, err)
	}
	return conf, nil
}

// newAdapter builds the adapter the config names.
func (c *Config) newAdapter() (nvdstore.Adapter, error) {
	switch c.Adapter {
	case "", "default":
		return nvdstore.NewDefaultAdapter(c.ShardSize), nil
	case "bolt":
		return nvdstore.NewBoltAdapter(), nil
	default:
		return nil, errors.Newf(errors.ErrConfiguration, "unknown adapter: %q", c.Adapter)
	}
}

// feedNames returns the configured feed names, defaulting to all
// published feeds.
func (c *Config) feedNames() []string {
	if len(c.Feeds) > 0 {
		return c.Feeds
	}
	return nvdstore.DefaultFeedNames()
}

// ConfigCommand represents a command for printing the effective config.
type ConfigCommand struct {
	*nvdstore.CmdIO
	Config *Config

	// Path optionally names a config file merged over the defaults.
	Path string
}

// NewConfigCommand returns a new instance of ConfigCommand.
func NewConfigCommand(stdin io.Reader, stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{
		CmdIO:  nvdstore.NewCmdIO(stdin, stdout, stderr),
		Config: NewConfig(),
	}
}

// Run prints out the config.
func (cmd *ConfigCommand) Run(_ context.Context) error {
	conf := cmd.Config
	if cmd.Path != "" {
		loaded, err := LoadConfig(cmd.Path)
		if err != nil {
			return err
		}
		conf = loaded
	}
	buf, err := toml.Marshal(*conf)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Stdout, string(buf))
	return nil
}
