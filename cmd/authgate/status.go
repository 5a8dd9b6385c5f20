// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/config"
)

// ProcessStatus holds the status information for one endpoint.
type ProcessStatus struct {
	Component     string `json:"component"`
	Running       bool   `json:"running"`
	Health        string `json:"health,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Error         string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	apiAddr     string
	metricsAddr string
	jsonOutput  bool
	timeout     time.Duration
}

// statusComponents fixes the row order of the table.
var statusComponents = []string{"api", "metrics"}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running authgate server",
		Long: `Show the health of a running authgate server by querying its API
/health endpoint and the observability readiness probe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.apiAddr, "addr", def.HTTP.Addr, "API address of the server")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", def.Metrics.Addr, "observability address (empty = skip)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-request timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}

	statuses := map[string]ProcessStatus{
		"api": queryAPIStatus(client, cfg.apiAddr),
	}
	if cfg.metricsAddr != "" {
		statuses["metrics"] = queryReadiness(client, cfg.metricsAddr)
	}

	var output string
	if cfg.jsonOutput {
		var err error
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(statuses)
	}

	cmd.Println(output)
	return nil
}

// queryAPIStatus reads the API's /health endpoint.
func queryAPIStatus(client *http.Client, addr string) ProcessStatus {
	status := ProcessStatus{Component: "api"}

	resp, err := client.Get(baseURL(addr) + "/health")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return status
	}

	var health struct {
		Status string  `json:"status"`
		Uptime float64 `json:"uptime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		status.Error = fmt.Sprintf("failed to decode health response: %v", err)
		return status
	}

	status.Running = true
	status.Health = health.Status
	status.UptimeSeconds = int64(health.Uptime)
	return status
}

// queryReadiness reads the observability readiness probe.
func queryReadiness(client *http.Client, addr string) ProcessStatus {
	status := ProcessStatus{Component: "metrics"}

	resp, err := client.Get(baseURL(addr) + "/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))

	status.Running = true
	switch resp.StatusCode {
	case http.StatusOK:
		status.Health = "ready"
	case http.StatusServiceUnavailable:
		status.Health = "not ready"
	default:
		status.Health = strings.TrimSpace(string(body))
		if status.Health == "" {
			status.Health = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
	return status
}

// baseURL turns a listen address into a URL a client can dial.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(statuses map[string]ProcessStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tHEALTH\tUPTIME")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t------")

	for _, component := range statusComponents {
		status, ok := statuses[component]
		if !ok {
			continue
		}
		if status.Running {
			uptime := "-"
			if status.UptimeSeconds > 0 {
				uptime = formatUptime(status.UptimeSeconds)
			}
			_, _ = fmt.Fprintf(w, "%s\trunning\t%s\t%s\n", component, status.Health, uptime)
		} else {
			reason := "not running"
			if status.Error != "" {
				reason = status.Error
			}
			_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t%s\n", component, reason)
		}
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(statuses map[string]ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
