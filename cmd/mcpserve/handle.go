package main

import (
	"github.com/spf13/cobra"

	"github.com/mnehpets/mcpserve/mcp"
)

func newHandleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handle",
		Short: "Answer one request read from stdin with an HTTP/1.1 response on stdout",
		Long: "handle reads a complete JSON-RPC request body from stdin and writes the\n" +
			"full HTTP/1.1 response message (status line, headers, body) to stdout.\n" +
			"Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log, flush, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer flush()

			server := mcp.New(
				mcp.WithServerInfo(cfg.Server.Name, cfg.Server.Version),
				mcp.WithLogger(log.Sugar().With("module", "mcp")),
			)
			return server.Handle(cmd.Context(), mcp.NewStreamExchange(cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}
}
