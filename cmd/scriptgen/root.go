package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/K-Arthur/script-generator/internal/version"
)

const defaultServer = "http://localhost:8000"

type rootOptions struct {
	server  string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "scriptgen",
		Short: "scriptgen - client for the script generation server",
		Long: `scriptgen submits source material to a scriptgend server and
retrieves the generated scripts, validation reports and exports.

The server address is read from --server or the SCRIPTGEN_SERVER
environment variable.`,
		Version:      version.String(),
		SilenceUsage: true,
	}

	server := os.Getenv("SCRIPTGEN_SERVER")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "Server base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")

	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newTasksCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newTemplatesCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (o *rootOptions) client() *Client {
	return &Client{
		BaseURL:    strings.TrimRight(o.server, "/"),
		HTTPClient: &http.Client{Timeout: o.timeout},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "scriptgen "+version.String())
		},
	}
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
