// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	nvdstore "github.com/molecula/nvdstore"
	"github.com/molecula/nvdstore/ctl"
)

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "nvdstore",
		Short: "nvdstore is a local cache for NVD CVE feeds.",
		Long: `nvdstore downloads NVD CVE feeds, stores them in sharded local
storage and lets you query them with attribute selectors.

` + nvdstore.VersionInfo() + "\n",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			return setAllConfig(v, cmd.Flags())
		},
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")

	rc.AddCommand(newConfigCommand(stdin, stdout, stderr))
	rc.AddCommand(newDownloadCommand(stdin, stdout, stderr))
	rc.AddCommand(newQueryCommand(stdin, stdout, stderr))
	rc.AddCommand(newSampleCommand(stdin, stdout, stderr))

	rc.SetOutput(stderr)
	return rc
}

// addConfigFlags binds the shared configuration to a command's flag set.
func addConfigFlags(flags *pflag.FlagSet, conf *ctl.Config) {
	flags.StringVar(&conf.DataDir, "data-dir", conf.DataDir, "Directory feed files are cached in.")
	flags.StringVar(&conf.Storage, "storage", conf.Storage, "Shard storage directory. Empty means temporary.")
	flags.StringVar(&conf.Adapter, "adapter", conf.Adapter, "Storage backend: default or bolt.")
	flags.IntVar(&conf.ShardSize, "shard-size", conf.ShardSize, "Documents per shard.")
	flags.StringSliceVar(&conf.Feeds, "feeds", conf.Feeds, "Feed names to operate on. Empty means all.")
	flags.IntVar(&conf.FetchConcurrency, "fetch-concurrency", conf.FetchConcurrency, "Parallel feed downloads.")
	flags.StringVar(&conf.LogPath, "log-path", conf.LogPath, "Log file to write to. Empty means stderr.")
	flags.BoolVar(&conf.Verbose, "verbose", conf.Verbose, "Enable verbose logging.")
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line, the
// environment, and a config file (if specified), and applies the configuration
// in that priority order. Since each flag in the set contains a pointer to
// where its value should be stored, setAllConfig can directly modify the value
// of each config variable.
//
// setAllConfig looks for environment variables which are capitalized versions
// of the flag names with dashes replaced by underscores, and prefixed with
// NVDSTORE plus an underscore.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	// add cmd line flag def to viper
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	// add env to viper
	v.SetEnvPrefix("NVDSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	c := v.GetString("config")
	var flagErr error
	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	// add config file to viper
	if c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}

		for _, key := range v.AllKeys() {
			if _, ok := validTags[key]; !ok {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	// set all values from viper
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// special handling is needed for stringSlice as v.GetString will
			// always return "" in the case that the value is an actual string
			// slice from a config file rather than a comma separated string
			// from a flag or env var.
			vss := v.GetStringSlice(f.Name)
			value = strings.Join(vss, ",")
		} else {
			value = v.GetString(f.Name)
		}

		if f.Changed {
			// If f.Changed is true, that means the value has already been set
			// by a flag, and we don't need to ask viper for it since the flag
			// is the highest priority. This works around a problem with string
			// slices where f.Value.Set(csvString) would cause the elements of
			// csvString to be appended to the existing value rather than
			// replacing it.
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
