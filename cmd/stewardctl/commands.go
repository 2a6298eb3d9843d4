package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rhuss/steward/pkg/api"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	dim     = color.New(color.Faint)
	warn    = color.New(color.FgYellow)
	failed  = color.New(color.FgRed)
)

func newChatCmd(o *options) *cobra.Command {
	var req api.ChatRequest
	cmd := &cobra.Command{
		Use:   "chat <conversation-id> <message...>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Message = strings.Join(args[1:], " ")
			var resp api.AgentResponse
			if err := o.client().do(cmd.Context(), http.MethodPost, conversationPath(args[0], "/messages"), req, &resp); err != nil {
				return err
			}
			printResponse(o, &resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ChannelID, "channel-id", "", "channel the message comes from")
	cmd.Flags().StringVar(&req.ChannelName, "channel-name", "", "display name of the channel")
	cmd.Flags().StringVar(&req.UserID, "user-id", "", "user sending the message")
	return cmd
}

func newCancelCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <conversation-id>",
		Short: "Cancel the turn running in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client().do(cmd.Context(), http.MethodDelete, conversationPath(args[0], "/turn"), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(o.out, "cancelled")
			return nil
		},
	}
}

func newToolsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list api.List[api.ToolInfo]
			if err := o.client().do(cmd.Context(), http.MethodGet, "/v1/tools", nil, &list); err != nil {
				return err
			}
			if len(list.Data) == 0 {
				fmt.Fprintln(o.out, "no tools")
				return nil
			}
			for _, t := range list.Data {
				heading.Fprintf(o.out, "%s", t.Name)
				dim.Fprintf(o.out, "  [%s, %s]\n", t.Visibility, t.Owner)
				if t.Description != "" {
					fmt.Fprintf(o.out, "  %s\n", t.Description)
				}
			}
			return nil
		},
	}
}

func newConfirmCmd(o *options) *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "confirm <conversation-id>",
		Short: "Approve (or with --reject, decline) the pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.AgentResponse
			body := api.ConfirmRequest{Confirmed: !reject}
			if err := o.client().do(cmd.Context(), http.MethodPost, conversationPath(args[0], "/confirmation"), body, &resp); err != nil {
				return err
			}
			printResponse(o, &resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "decline the pending action")
	return cmd
}

func newHistoryCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the most recent turns of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := conversationPath(args[0], "/messages")
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var list api.List[api.Turn]
			if err := o.client().do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			for _, turn := range list.Data {
				dim.Fprintf(o.out, "%s ", turn.CreatedAt.Format("2006-01-02 15:04:05"))
				heading.Fprintf(o.out, "%s: ", turn.Role)
				fmt.Fprintln(o.out, turn.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of turns (default: server setting)")
	return cmd
}

func printResponse(o *options, resp *api.AgentResponse) {
	for _, r := range resp.ToolResults {
		if r.Error != "" {
			failed.Fprintf(o.out, "✗ %s: %s\n", r.ToolName, r.Error)
			continue
		}
		dim.Fprintf(o.out, "✓ %s\n", r.ToolName)
	}
	fmt.Fprintln(o.out, resp.Text)
	if p := resp.PendingConfirmation; p != nil {
		warn.Fprintf(o.out, "pending confirmation: %s\n", p.Description)
		fmt.Fprintf(o.out, "run 'stewardctl confirm %s' to approve\n", resp.ConversationID)
	}
}
