// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/petar-djukic/go-repomap/internal/repomap"
	"github.com/petar-djukic/go-repomap/internal/server"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

// newMapCmd creates the "map" command.
func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <owner>/<repo>",
		Short: "Print the ranked map of a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runMap,
	}
	cmd.Flags().Int("max-files", types.DefaultMaxFiles, "Maximum source files to analyze")
	cmd.Flags().Int("max-symbols", types.DefaultMaxSymbols, "Maximum symbols in the map")
	cmd.Flags().String("format", "text", "Output format: text or json")
	return cmd
}

func runMap(cmd *cobra.Command, args []string) error {
	owner, repo, ok := strings.Cut(args[0], "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("repository must be <owner>/<repo>, got %q", args[0])
	}
	maxFiles, _ := cmd.Flags().GetInt("max-files")
	maxSymbols, _ := cmd.Flags().GetInt("max-symbols")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	m, err := newMapper(logger)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req := types.Request{Owner: owner, Repo: repo, MaxFiles: maxFiles, MaxSymbols: maxSymbols}
	out, err := m.Map(ctx, req)
	if err != nil {
		return err
	}
	return printMap(cmd.OutOrStdout(), out, format)
}

func printMap(w io.Writer, out *types.MapOutput, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling map: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := io.WriteString(w, repomap.RenderText(out))
	return err
}

// newQuotaCmd creates the "quota" command.
func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the last known GitHub API quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			m, err := newMapper(logger)
			if err != nil {
				return err
			}
			defer m.Close()
			return printQuota(cmd.OutOrStdout(), m.QuotaStates(), time.Now())
		},
	}
}

func printQuota(w io.Writer, states []types.QuotaState, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tREMAINING\tLIMIT\tRESETS IN")
	for _, s := range states {
		in := "-"
		if s.ResetAt.After(now) {
			in = s.ResetAt.Sub(now).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Tier, s.Remaining, s.Limit, in)
	}
	return tw.Flush()
}

// newServeCmd creates the "serve" command.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve repository maps over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			m, err := newMapper(logger)
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return server.New(m, version, logger).Run(ctx, &mcp.StdioTransport{})
		},
	}
}
