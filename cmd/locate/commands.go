// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/locate/pkg/logging"
	"github.com/AleutianAI/locate/services/locate/config"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded by the root PersistentPreRunE
	cfg    *config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "locate",
		Short: "Merge location lists from every attached language server",
		Long: `locate sends one location request (declaration, definition,
implementation, references or typeDefinition) to every language server
that handles the target file and streams the merged results.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	queryCmd = &cobra.Command{
		Use:   "query <method> <file> <line> <character>",
		Short: "Run one location query (line and character are 1-based)",
		Args:  cobra.ExactArgs(4),
		RunE:  runQuery, // Defined in cmd_query.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve location queries over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	serversCmd = &cobra.Command{
		Use:   "servers",
		Short: "Start the configured language servers and list their capabilities",
		Args:  cobra.NoArgs,
		RunE:  runServers, // Defined in cmd_servers.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $"+config.EnvConfigPath+" or ~/.config/locate/locate.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config file)")

	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryOpts.timeout, "timeout", 0, "Per-server timeout in milliseconds; 0 or less waits forever (default from config)")
	queryCmd.Flags().StringVar(&queryOpts.silent, "silent", "", `Notice level: "" shows all, "silent" hides info, "silent!" hides everything`)
	queryCmd.Flags().StringArrayVar(&queryOpts.highlights, "highlight", nil, "Highlight group override as key=Group (keys: path, lineNr, word); repeatable")
	queryCmd.Flags().BoolVar(&queryOpts.stdin, "stdin", false, "Read the unsaved text of the target file from stdin")
	queryCmd.Flags().BoolVar(&queryOpts.json, "json", false, "Write JSON lines instead of text")
	queryCmd.Flags().StringVar(&queryOpts.color, "color", "auto", "Text output: auto, color or plain")
	queryCmd.Flags().StringVar(&queryOpts.cwd, "cwd", "", "Working directory for relative paths (default: current directory)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveOpts.root, "root", "", "Workspace root for the language servers (default: current directory)")

	rootCmd.AddCommand(serversCmd)
	serversCmd.Flags().BoolVar(&serversOpts.json, "json", false, "Write JSON instead of a table")
	serversCmd.Flags().StringVar(&serversOpts.root, "root", "", "Workspace root for the language servers (default: current directory)")
}

// setup loads the config and builds the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	level, err := resolveLevel(cmd, cfg.Log.Level)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "locate",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger.Slog())
	return nil
}

// resolveLevel picks the log level: --log-level, then the config file.
// Without --log-level, query logs warnings and above so that its
// stderr carries notices rather than server lifecycle records.
func resolveLevel(cmd *cobra.Command, configured string) (logging.Level, error) {
	if cmd.Flags().Changed("log-level") {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return level, fmt.Errorf("--log-level: %w", err)
		}
		return level, nil
	}
	level, err := logging.ParseLevel(configured)
	if err != nil {
		return level, fmt.Errorf("config log.level: %w", err)
	}
	if cmd == queryCmd && level < logging.LevelWarn {
		level = logging.LevelWarn
	}
	return level, nil
}

// workingDir returns dir, or the process working directory when dir is
// empty.
func workingDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not determine the working directory: %w", err)
	}
	return wd, nil
}
