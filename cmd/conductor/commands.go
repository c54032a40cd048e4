package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/server"
	"github.com/haasonsaas/conductor/internal/shell"
	"github.com/haasonsaas/conductor/internal/tools"
)

// clientFlags are shared by run and chat.
type clientFlags struct {
	baseURL string
	apiKey  string
	session string
	live    bool
	verbose bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", envOr("CONDUCTOR_BASE_URL", defaultBaseURL), "API base URL")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("CONDUCTOR_API_KEY"), "API key sent as a bearer token")
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "Session ID for conversation continuity")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Show reasoning, tool output and usage")
}

// send runs one message, streaming events when live is set.
func (f *clientFlags) send(ctx context.Context, client *apiClient, p *printer, message string) (*agent.Response, error) {
	req := server.RunRequest{Message: message, SessionID: f.session}
	if f.live {
		resp, err := client.Stream(ctx, req, p.Event)
		if err != nil {
			return nil, err
		}
		p.Final(resp)
		return resp, nil
	}
	resp, err := client.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	p.Steps(resp)
	p.Final(resp)
	return resp, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// =============================================================================
// Client Commands
// =============================================================================

func buildRunCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Send one message to a running server",
		Example: `  conductor run "What is the capital of France?"
  conductor run "list files in /tmp" --live --verbose
  conductor run confirm --session 3f2a...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(flags.baseURL, flags.apiKey)
			p := &printer{out: cmd.OutOrStdout(), verbose: flags.verbose}
			_, err := flags.send(cmd.Context(), client, p, strings.Join(args, " "))
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&flags.live, "live", "l", false, "Stream progress events as they happen")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server interactively",
		Long: `Start an interactive session. The session ID is kept across turns so the
agent remembers the conversation. Type /quit, /exit or /q to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("live") {
				flags.live = term.IsTerminal(int(os.Stdout.Fd()))
			}
			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), &flags, interactive)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&flags.live, "live", "l", false, "Stream progress events (default when stdout is a terminal)")
	return cmd
}

func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "/quit", "/exit", "/q":
		return true
	}
	return false
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, flags *clientFlags, interactive bool) error {
	client := newAPIClient(flags.baseURL, flags.apiKey)
	p := &printer{out: out, verbose: flags.verbose}
	if interactive {
		fmt.Fprintln(out, "Conductor chat. Type /quit to exit.")
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if interactive {
			fmt.Fprint(out, "\nyou> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isQuit(line) {
			return nil
		}

		resp, err := flags.send(ctx, client, p, line)
		if err != nil {
			var statusErr *apiStatusError
			if errors.As(err, &statusErr) {
				fmt.Fprintf(out, "error: %s\n", statusErr.Detail)
				continue
			}
			return err
		}
		flags.session = resp.SessionID
	}
}

// =============================================================================
// Local Commands
// =============================================================================

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect built-in tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the tools the agent can call",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := agent.NewToolRegistry()
			shells := shell.NewManager(nil, nil)
			defer shells.CloseAll()
			tools.RegisterBuiltins(reg, tools.Deps{Shells: shells})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, spec := range reg.Specs() {
				fmt.Fprintf(w, "%s\t%s\n", spec.Name, spec.Description)
			}
			return w.Flush()
		},
	})
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate configuration and print its schema",
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(configPath)
			if _, err := config.Load(path); err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", path)
			return nil
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.AddCommand(validate, schema)
	return cmd
}
