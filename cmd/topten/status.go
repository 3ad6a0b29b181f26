// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/allev1985/topten-sub005/internal/config"
)

// statusProbeTimeout bounds each health request.
const statusProbeTimeout = 2 * time.Second

// ProbeStatus is the outcome of one health endpoint.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServerStatus holds the health of a running server.
type ServerStatus struct {
	Addr   string        `json:"addr"`
	Probes []ProbeStatus `json:"probes"`
}

// Ready reports whether every probe passed.
func (s ServerStatus) Ready() bool {
	for _, p := range s.Probes {
		if !p.OK {
			return false
		}
	}
	return len(s.Probes) > 0
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running TopTen server",
		Long: `Query the liveness and readiness probes of a running server's
observability listener. Exits non-zero when the server is not ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, http.DefaultClient)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "", "observability address (default: metrics.addr from config)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, client *http.Client) error {
	addr := cfg.addr
	if addr == "" {
		path, err := resolveConfigFile()
		if err != nil {
			return err
		}
		loaded, err := config.LoadUnvalidated(path, nil)
		if err != nil {
			return err
		}
		addr = loaded.Metrics.Addr
	}
	if addr == "" {
		return oops.Code("CONFIG_INVALID").With("field", "metrics.addr").Errorf("observability address is not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	status := queryServerStatus(ctx, client, addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(status))
	}

	if !status.Ready() {
		return oops.Code("SERVER_NOT_READY").With("addr", addr).Errorf("server at %s is not ready", addr)
	}
	return nil
}

// queryServerStatus probes liveness then readiness.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")

	status := ServerStatus{Addr: addr}
	for _, probe := range []string{"liveness", "readiness"} {
		status.Probes = append(status.Probes, queryProbe(ctx, client, base+"/healthz/"+probe, probe))
	}
	return status
}

func queryProbe(ctx context.Context, client *http.Client, url, probe string) ProbeStatus {
	result := ProbeStatus{Probe: probe}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("failed to connect: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	result.Status = resp.StatusCode
	result.Body = strings.TrimSpace(string(body))
	result.OK = resp.StatusCode == http.StatusOK
	return result
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "SERVER\t%s\n", status.Addr)
	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")
	for _, p := range status.Probes {
		state := "ok"
		if !p.OK {
			state = "failing"
		}
		detail := p.Body
		if p.Error != "" {
			detail = p.Error
		} else if p.Status != 0 && !p.OK {
			detail = fmt.Sprintf("%d %s", p.Status, p.Body)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Probe, state, detail)
	}

	_ = w.Flush()
	return b.String()
}
