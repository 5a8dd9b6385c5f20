// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/xdg"
)

// secretBytes is the entropy of a generated token secret.
const secretBytes = 32

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Print the configuration serve would run with after merging defaults,
the config file and AUTHGATE_* environment variables. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
			}
			if cfg.File != "" {
				cmd.Printf("# loaded from %s\n", cfg.File)
			}
			cmd.Print(string(out))
			if err := cfg.Validate(); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file with a fresh token secret",
		Long: `Write the default configuration to --config, or to
XDG_CONFIG_HOME/authgate/config.yaml when --config is not given. A random
token signing secret is generated. Existing files are kept unless --force
is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := initConfigFile(configFile, force)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// initConfigFile writes the default configuration and returns its path.
func initConfigFile(path string, force bool) (string, error) {
	if path == "" {
		var err error
		path, err = xdg.ConfigFile()
		if err != nil {
			return "", err //nolint:wrapcheck // xdg returns coded errors
		}
	}

	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return "", oops.Code("CONFIG_EXISTS").With("path", path).
				Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	cfg := config.Default()
	cfg.Token.Secret = secret

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}

	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err //nolint:wrapcheck // xdg returns coded errors
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
