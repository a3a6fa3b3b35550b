// Package config resolves the mount command's configuration from CLI
// flags, an optional overlay file, and environment variables, the same
// precedence dittofs's pkg/config/config.go establishes: flags and env
// win over a config file, which wins over defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved configuration for the appendfsmount command.
type Config struct {
	Root               string `validate:"required"`
	MountPoint         string `validate:"required"`
	WriteBufferSize    uint64 `validate:"gte=4096"`
	SkipCorruptRecords bool
	LogLevel           string `validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	AllowOther         bool
	Debug              bool
}

var validate = validator.New()

// Parse builds a FlagSet, parses args against it, layers an optional
// config file and APPENDFS_* environment variables on top via viper,
// and validates the result.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("appendfsmount", pflag.ContinueOnError)
	fs.String("root", "", "backing directory holding data and meta")
	fs.String("mountpoint", "", "path at which to mount the filesystem")
	fs.String("write-buffer-size", "4MiB", "per-handle write buffer capacity (e.g. 4MiB, 512KiB)")
	fs.Bool("skip-corrupt-records", true, "skip CRC-failed log records instead of stopping replay")
	fs.String("log-level", "INFO", "DEBUG, INFO, WARN, or ERROR")
	fs.Bool("allow-other", false, "allow other users to access the mount (requires user_allow_other)")
	fs.Bool("debug", false, "enable FUSE debug logging")
	fs.String("config", "", "optional YAML/TOML config file overlay")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("APPENDFS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	if cf, _ := fs.GetString("config"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	bufBytes, err := humanize.ParseBytes(v.GetString("write-buffer-size"))
	if err != nil {
		return nil, fmt.Errorf("parsing write-buffer-size: %w", err)
	}

	cfg := &Config{
		Root:               v.GetString("root"),
		MountPoint:         v.GetString("mountpoint"),
		WriteBufferSize:    bufBytes,
		SkipCorruptRecords: v.GetBool("skip-corrupt-records"),
		LogLevel:           strings.ToUpper(v.GetString("log-level")),
		AllowOther:         v.GetBool("allow-other"),
		Debug:              v.GetBool("debug"),
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation only. The minimum write-buffer
// size is the gte=4096 tag on Config.WriteBufferSize, which mirrors
// engine.MinWriteBufferSize as a plain literal since internal/config
// must not import engine (the ambient layer sits below the core, not
// beside it).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
