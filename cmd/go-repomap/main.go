// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Command go-repomap prints ranked maps of GitHub repositories and serves
// them to MCP clients.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/pkg/mapper"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load() // .env is optional

	rootCmd := &cobra.Command{
		Use:           "go-repomap",
		Short:         "Ranked symbol maps of GitHub repositories",
		Long:          "go-repomap fetches a repository snapshot from GitHub, extracts its symbols, ranks them by PageRank over the reference graph and prints the most important ones grouped by file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags.
	rootCmd.PersistentFlags().String("token", "", "GitHub token (default $GITHUB_TOKEN)")
	rootCmd.PersistentFlags().String("base-url", "", "GitHub API root (default https://api.github.com)")
	rootCmd.PersistentFlags().String("db", defaultDBPath(), "SQLite file for the cache and quota state (\":memory:\" disables persistence)")
	rootCmd.PersistentFlags().Duration("fetch-ttl", 0, "Lifetime of cached trees and file contents (default 1h)")
	rootCmd.PersistentFlags().Duration("maps-ttl", 0, "Lifetime of cached maps (default 24h)")
	rootCmd.PersistentFlags().Bool("fail-fast", false, "Fail instead of waiting when the quota is exhausted")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Files fetched and extracted at once (default 8)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Deadline of one map request (default 2m)")
	rootCmd.PersistentFlags().Int64("max-in-flight", 0, "Concurrent GitHub API requests (default 8)")
	rootCmd.PersistentFlags().Int64("max-file-bytes", 0, "Skip files larger than this many bytes (default 512 KiB)")
	rootCmd.PersistentFlags().String("remote-base", "", "Git remote root used with --use-git (default https://github.com)")
	rootCmd.PersistentFlags().Bool("use-git", false, "Pin snapshots over the git protocol instead of the REST API")
	rootCmd.PersistentFlags().String("mirror-dir", "", "Directory of local clones laid out as <owner>/<repo>")
	rootCmd.PersistentFlags().StringSlice("skip", nil, "Extra gitignore-style patterns of paths to leave out")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error or off")
	rootCmd.PersistentFlags().String("log-format", logging.FormatText, "Log format: text or json")

	// Bind flags to viper.
	for _, name := range []string{
		"token", "base-url", "db", "fetch-ttl", "maps-ttl", "fail-fast", "concurrency",
		"timeout", "max-in-flight", "max-file-bytes", "remote-base", "use-git", "mirror-dir",
		"skip", "log-level", "log-format",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.BindEnv("token", "GO_REPOMAP_TOKEN", "GITHUB_TOKEN")

	// Env vars: GO_REPOMAP_DB, GO_REPOMAP_LOG_LEVEL, etc.
	viper.SetEnvPrefix("GO_REPOMAP")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Config file.
	viper.SetConfigName(".go-repomap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.ReadInConfig() // Ignore error; config file is optional.

	rootCmd.AddCommand(newMapCmd())
	rootCmd.AddCommand(newQuotaCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var envKeyReplacer = strings.NewReplacer("-", "_")

// newLogger writes to stderr so stdout stays free for maps and MCP traffic.
func newLogger() (*slog.Logger, error) {
	return logging.New(os.Stderr, logging.LevelFromString(viper.GetString("log-level")), viper.GetString("log-format"))
}

// newMapper builds a Mapper from the bound flags, environment and config file.
func newMapper(logger *slog.Logger) (mapper.Mapper, error) {
	m, err := mapper.New(configFromViper(logger))
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	return m, nil
}

func configFromViper(logger *slog.Logger) mapper.Config {
	return mapper.Config{
		Token:          viper.GetString("token"),
		BaseURL:        viper.GetString("base-url"),
		DBPath:         viper.GetString("db"),
		FetchTTL:       viper.GetDuration("fetch-ttl"),
		MapsTTL:        viper.GetDuration("maps-ttl"),
		FailFast:       viper.GetBool("fail-fast"),
		MaxConcurrency: viper.GetInt("concurrency"),
		MaxInFlight:    viper.GetInt64("max-in-flight"),
		Timeout:        viper.GetDuration("timeout"),
		MaxFileBytes:   viper.GetInt64("max-file-bytes"),
		UseGit:         viper.GetBool("use-git"),
		MirrorDir:      viper.GetString("mirror-dir"),
		RemoteBase:     viper.GetString("remote-base"),
		SkipPatterns:   viper.GetStringSlice("skip"),
		Logger:         logger,
	}
}

// defaultDBPath places the database in the user cache directory, or keeps it
// in memory when there is none.
func defaultDBPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ":memory:"
	}
	return filepath.Join(dir, "go-repomap", "repomap.db")
}

// newVersionCmd creates the "version" command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print go-repomap version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "go-repomap %s\n", version)
		},
	}
}
