// Command mcpserve runs the MCP JSON-RPC server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnehpets/mcpserve/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath, o.envFiles...)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "mcpserve",
		Short:         "Minimal MCP JSON-RPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mcpserve "+version)
		},
	}

	root.AddCommand(newServeCommand(opts), newHandleCommand(opts), newSmokeCommand(), versionCmd)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mcpserve:", err)
		os.Exit(1)
	}
}
