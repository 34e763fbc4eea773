package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"calmate/internal/chat"
)

var (
	youStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle = lipgloss.NewStyle().Faint(true)
)

func newChatCmd(a *app) *cobra.Command {
	var message string
	var plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant (REPL, or one message with -m)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.chat(cmd.Context())
			if err != nil {
				return err
			}

			render := newRenderer(plain)
			out := cmd.OutOrStdout()

			if message != "" {
				reply, err := c.Send(cmd.Context(), message)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, render(reply))
				return nil
			}
			return repl(cmd, c, render)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	cmd.Flags().BoolVar(&plain, "plain", false, "print replies without markdown rendering")
	return cmd
}

// newRenderer returns a markdown renderer for replies; plain or a failed
// glamour setup prints text unchanged.
func newRenderer(plain bool) func(string) string {
	identity := func(s string) string { return s }
	if plain {
		return identity
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return identity
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.TrimRight(out, "\n")
	}
}

func repl(cmd *cobra.Command, c *chat.Chat, render func(string) string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, dimStyle.Render("calmate chat (type 'exit' to quit)"))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\n"+youStyle.Render("you ›")+" ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := c.Send(cmd.Context(), input)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			continue
		}
		if reply == "" {
			continue
		}
		fmt.Fprintln(out, botStyle.Render("calmate ›"))
		fmt.Fprintln(out, render(reply))
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
