// Command bridgectl is a thin terminal client for a bridge server: it
// connects over websocket, replays history on connect, prints reconstructed
// conversation events, and forwards typed lines as prompts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/client"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/config"
	"github.com/pdHaku0/gemini-cli-agent-sdk/internal/bridge/wire"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Thin client for a bridge server",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "bridgectl.yaml", "path to client config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// wsResponder adapts a websocket connection to client.Responder.
type wsResponder struct {
	conn *websocket.Conn
}

func (w *wsResponder) Respond(f *wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return fmt.Errorf("bridgectl: load config: %w", err)
	}
	if cfg.URL == "" {
		cfg.URL = "ws://localhost:4444/ws"
	}

	dialURL, err := buildDialURL(cfg)
	if err != nil {
		return fmt.Errorf("bridgectl: build dial url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("bridgectl: dial: %w", err)
	}
	defer conn.Close()

	resp := &wsResponder{conn: conn}
	r := client.New(client.SinkFunc(printEvent), cfg.DiffContextLines)

	go readLoop(ctx, conn, resp, r)
	promptLoop(ctx, conn, r)
	return nil
}

// buildDialURL appends the configured replay query parameters to the
// websocket URL (spec §6 "Replay query").
func buildDialURL(cfg *config.Client) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if cfg.ReplayLimit > 0 {
		q.Set("limit", strconv.Itoa(cfg.ReplayLimit))
	}
	if cfg.ReplaySinceMs > 0 {
		q.Set("since", strconv.FormatInt(cfg.ReplaySinceMs, 10))
	}
	if cfg.ReplayBeforeMs > 0 {
		q.Set("before", strconv.FormatInt(cfg.ReplayBeforeMs, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(ctx context.Context, conn *websocket.Conn, resp client.Responder, r *client.Reconstructor) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f wire.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		r.HandleFrame(resp, &f)
	}
}

// promptLoop reads lines from stdin and sends each as a session/prompt,
// until EOF or the context is cancelled.
func promptLoop(ctx context.Context, conn *websocket.Conn, r *client.Reconstructor) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		r.SendPrompt(text, "")
		params := wire.SessionPromptParams{Prompt: []wire.PromptItem{{Type: "text", Text: text}}}
		f, err := wire.NewNotification(wire.MethodSessionPrompt, params)
		if err != nil {
			continue
		}
		data, err := json.Marshal(f)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func printEvent(e client.Event) {
	switch e.Type {
	case "user_message":
		fmt.Printf("> %s\n", e.Delta)
	case "text_delta":
		fmt.Print(e.Delta)
	case "thought_delta":
		// thoughts are not printed to the transcript by default
	case "tool_call":
		fmt.Printf("\n[tool] %s: %s\n", e.Tool.ID, e.Tool.Title)
	case "tool_call_update", "tool_completed":
		fmt.Printf("[tool] %s -> %s\n", e.Tool.ID, e.Tool.Status)
	case "turn_completed":
		fmt.Println()
	case "auth_url":
		fmt.Printf("\n[auth] visit: %s\n", e.Delta)
	case "permission_request":
		fmt.Printf("\n[permission] %s (options: %v)\n", e.Permission.Title, e.Permission.Options)
	case "structured_event":
		fmt.Printf("\n[event] %v\n", e.Structured)
	}
}
