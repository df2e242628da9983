package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/mnehpets/mcpserve/client"
)

type smokeStep struct {
	Name       string          `json:"name"`
	OK         bool            `json:"ok"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

type smokeReport struct {
	OK         bool        `json:"ok"`
	URL        string      `json:"url"`
	Protocol   string      `json:"protocol_version,omitempty"`
	Steps      []smokeStep `json:"steps"`
	StartedAt  string      `json:"started_at"`
	FinishedAt string      `json:"finished_at"`
	DurationMs int64       `json:"duration_ms"`
}

// errSmokeFailed makes the process exit non-zero after the report is printed.
var errSmokeFailed = errors.New("smoke test failed")

func newSmokeCommand() *cobra.Command {
	var (
		url      string
		token    string
		protocol string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Call initialize and tools/list on a running server and print a JSON report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []client.Option
			opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: timeout}))
			if token != "" {
				opts = append(opts, client.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
			}
			c, err := client.New(url, opts...)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := runSmoke(ctx, c, url, protocol)
			if err := printReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK {
				return errSmokeFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "MCP endpoint url")
	cmd.Flags().StringVar(&token, "token", "", "bearer token to send")
	cmd.Flags().StringVar(&protocol, "protocol", "2024-11-05", "client protocol version")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall timeout")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runSmoke(ctx context.Context, c *client.Client, url, protocol string) smokeReport {
	started := time.Now().UTC()
	report := smokeReport{URL: url, StartedAt: started.Format(time.RFC3339)}

	report.Steps = append(report.Steps, step("initialize", func() (interface{}, error) {
		res, err := c.Initialize(ctx, map[string]interface{}{
			"protocolVersion": protocol,
			"capabilities":    map[string]interface{}{},
			"clientInfo":      map[string]string{"name": "mcpserve-smoke", "version": version},
		})
		if err != nil {
			return nil, err
		}
		var pv string
		if json.Unmarshal(res.ProtocolVersion, &pv) == nil {
			report.Protocol = pv
		}
		return res, nil
	}))
	report.Steps = append(report.Steps, step("tools/list", func() (interface{}, error) {
		res, err := c.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": len(res.Tools)}, nil
	}))

	report.OK = true
	for _, s := range report.Steps {
		report.OK = report.OK && s.OK
	}
	finished := time.Now().UTC()
	report.FinishedAt = finished.Format(time.RFC3339)
	report.DurationMs = finished.Sub(started).Milliseconds()
	return report
}

func step(name string, fn func() (interface{}, error)) smokeStep {
	start := time.Now()
	detail, err := fn()
	s := smokeStep{Name: name, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.OK = true
	if b, err := json.Marshal(detail); err == nil {
		s.Detail = b
	}
	return s
}

func printReport(w io.Writer, report smokeReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
