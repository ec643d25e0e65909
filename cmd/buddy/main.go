// Command buddy runs the code assistant backend and offers small client
// subcommands that talk to a running server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/server"
	"github.com/buildownai/buddy/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "buddy",
		Short:         "buddy is an AI code assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default ~/.buddy/config.yaml)")
	loadConfig := func() (config.Config, error) {
		if configPath != "" {
			return config.LoadFile(configPath)
		}
		return config.Load()
	}
	root.AddCommand(newServeCmd(loadConfig))
	root.AddCommand(newIndexCmd(loadConfig))
	root.AddCommand(newChatCmd(loadConfig))
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the backend server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg, log.New())
		},
	}
}

func newIndexCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "index <projectID>",
		Short: "Index a project on a running server and follow the progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url := fmt.Sprintf("%s/projects/%s/index?stream=1", baseURL(cfg), args[0])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			return streamSSE(req, func(event string, data map[string]any) {
				switch event {
				case "error":
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", data["message"])
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "[%3.0f%%] %v\n", toFloat(data["percentage"]), data["message"])
				}
			})
		},
	}
}

func newChatCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat <projectID> <message>",
		Short: "Send one chat message to a running server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			body, err := json.Marshal(map[string]string{
				"conversationID": conversationID,
				"message":        strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			url := fmt.Sprintf("%s/projects/%s/chat", baseURL(cfg), args[0])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			out := cmd.OutOrStdout()
			return streamSSE(req, func(event string, data map[string]any) {
				switch event {
				case "tool_call":
					fmt.Fprintf(out, "* calling %v\n", data["tool"])
				case "token":
					fmt.Fprint(out, data["content"])
				case "end":
					fmt.Fprintf(out, "\n\nconversation: %v\n", data["conversationID"])
				case "error":
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", data["content"])
				}
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func baseURL(cfg config.Config) string {
	addr := cfg.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// streamSSE performs the request and feeds each event to fn until the
// stream ends.
func streamSSE(req *http.Request, fn func(event string, data map[string]any)) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	event := ""
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := make(map[string]any)
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
				continue
			}
			fn(event, data)
		}
	}
	return sc.Err()
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
