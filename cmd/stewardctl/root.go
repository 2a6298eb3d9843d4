package main

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	server  string
	token   string
	timeout time.Duration
	out     io.Writer
}

func (o *options) client() *client {
	return newClient(o.server, o.token, o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{out: out}

	root := &cobra.Command{
		Use:   "stewardctl",
		Short: "Command line client for the steward server",
		Long: `stewardctl sends chat turns, inspects tools and history, and answers
pending confirmations on a running steward server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	server := os.Getenv("STEWARD_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVarP(&o.server, "server", "s", server, "steward base URL (or set STEWARD_URL)")
	root.PersistentFlags().StringVar(&o.token, "token", os.Getenv("STEWARD_TOKEN"), "bearer token (or set STEWARD_TOKEN)")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", 5*time.Minute, "request timeout")

	root.AddCommand(
		newChatCmd(o),
		newCancelCmd(o),
		newToolsCmd(o),
		newConfirmCmd(o),
		newHistoryCmd(o),
	)
	return root
}
