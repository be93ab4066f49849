package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Neuro/internal/neuro/app"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [utterance]",
		Short: "Handle one utterance, or read utterances from stdin until exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer a.Stop()

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				reply, err := a.Ask(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printReply(out, reply, asJSON)
			}

			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				if line == "" {
					continue
				}
				reply, err := a.Ask(ctx, line)
				if err != nil {
					return err
				}
				if err := printReply(out, reply, asJSON); err != nil {
					return err
				}
				if reply.Exit || ctx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full reply as JSON")
	return cmd
}

func printReply(w io.Writer, reply *app.Reply, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	_, err := fmt.Fprintln(w, reply.Text)
	return err
}

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <utterance>",
		Short: "Print the command labels for an utterance without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.start(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Stop()

			for _, label := range a.Classify(cmd.Context(), strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), label)
			}
			return nil
		},
	}
}
