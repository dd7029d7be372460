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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/locate/services/locate/lsp"
)

// serversOptions are the flags of `locate servers`.
type serversOptions struct {
	json bool
	root string
}

var serversOpts serversOptions

func runServers(cmd *cobra.Command, _ []string) error {
	root, err := workingDir(serversOpts.root)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool := lsp.NewPool(root, cfg.Servers)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Debug("language server shutdown", slog.String("error", err.Error()))
		}
	}()

	enableErr := pool.Enable(ctx)
	if enableErr != nil && !errors.Is(enableErr, lsp.ErrNoServers) {
		return enableErr
	}

	if err := writeServers(cmd.OutOrStdout(), pool.Describe(), serversOpts.json); err != nil {
		return err
	}
	return enableErr
}

// writeServers prints one row (or JSON object) per configured server.
func writeServers(w io.Writer, statuses []lsp.ServerStatus, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		caps := make([]string, 0, len(s.Capabilities))
		for _, c := range s.Capabilities {
			caps = append(caps, string(c))
		}
		rows = append(rows, []string{s.Name, s.State, orDash(s.Version), s.Command, orDash(strings.Join(caps, ", "))})
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "STATE", "VERSION", "COMMAND", "CAPABILITIES").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
