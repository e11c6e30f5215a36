package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pulse-realtime/pulse-go/pkg/client"
)

// Console is the interactive command loop.
type Console struct {
	rl *readline.Instance
}

// NewConsole creates the readline prompt.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pulse> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stderr returns a writer that coordinates with the prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, cl *client.Client) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "send", "s":
			c.cmdSend(cl, args, input)

		case "state", "status":
			c.cmdState(cl)

		case "disconnect":
			cl.Disconnect()
			fmt.Fprintln(c.rl.Stdout(), "Disconnected")

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Pulse Client Commands:
  send <event> [channel] [json] - Send an event (data is raw JSON)
  state                         - Show connection state
  disconnect                    - Close the connection
  help                          - Show this help
  quit                          - Exit`)
}

// cmdSend parses "send event [channel] [json...]". The JSON payload is
// taken verbatim from the rest of the line so it may contain spaces.
func (c *Console) cmdSend(cl *client.Client, args []string, input string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: send <event> [channel] [json]")
		return
	}

	event := args[0]
	var channel string
	var data any

	_, rest, _ := strings.Cut(input, " ")
	_, rest, _ = strings.Cut(strings.TrimSpace(rest), " ")
	rest = strings.TrimSpace(rest)
	if rest != "" && !strings.HasPrefix(rest, "{") && !strings.HasPrefix(rest, "[") {
		channel, rest, _ = strings.Cut(rest, " ")
		rest = strings.TrimSpace(rest)
	}
	if rest != "" {
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(rest), &raw); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid JSON: %v\n", err)
			return
		}
		data = raw
	}

	if !cl.SendEvent(event, data, channel) {
		fmt.Fprintf(c.rl.Stdout(), "Not sent (state: %s)\n", cl.State())
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Sent %s\n", event)
}

func (c *Console) cmdState(cl *client.Client) {
	out := c.rl.Stdout()
	cfg := cl.Config()

	fmt.Fprintf(out, "State:     %s\n", cl.State())
	if id := cl.SocketID(); id != "" {
		fmt.Fprintf(out, "Socket:    %s\n", id)
	}
	if label := cl.Manager().TransportLabel(); label != "" {
		fmt.Fprintf(out, "Transport: %s\n", label)
	}
	fmt.Fprintf(out, "Host:      %s\n", cfg.Host)
	if ep := cl.Endpoint(); ep != nil {
		fmt.Fprintf(out, "Gateway:   %s (mDNS)\n", ep)
	}
}
