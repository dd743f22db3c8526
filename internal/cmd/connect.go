package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dostenterprises/socketlink/pkg/config"
	"github.com/dostenterprises/socketlink/pkg/connection"
	"github.com/dostenterprises/socketlink/pkg/logger"
	"github.com/dostenterprises/socketlink/pkg/output"
	"github.com/dostenterprises/socketlink/pkg/serverconfig"
	"github.com/dostenterprises/socketlink/pkg/socketio"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

const closeWait = 2 * time.Second

var (
	connectEmit   string
	connectData   string
	connectEvents []string
)

var connectCmd = &cobra.Command{
	Use:   "connect [url]",
	Short: "Open the shared socket connection and stream events",
	Long: `Open the shared socket.io connection and print lifecycle events until
interrupted. The URL defaults to the primary server. Use --on to print
incoming server events and --emit to send one event after connecting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := serverconfig.PrimaryURL
		if len(args) == 1 {
			url = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runConnect(ctx, url, connectOptions{
			emitEvent:   connectEmit,
			emitData:    connectData,
			events:      connectEvents,
			waitWarning: time.Duration(config.GetInt("socket.timeout")) * time.Second,
		})
	},
}

type connectOptions struct {
	emitEvent string
	emitData  string
	events    []string
	// waitWarning is how long to wait for the first connect before warning
	waitWarning time.Duration
}

// runConnect streams the shared connection until ctx is done, then closes it
func runConnect(ctx context.Context, url string, opts connectOptions) error {
	emitArgs, err := parseEmitData(opts.emitEvent, opts.emitData)
	if err != nil {
		return err
	}
	if opts.emitEvent != "" && socketio.IsReservedEvent(opts.emitEvent) {
		return fmt.Errorf("cannot emit reserved event %q", opts.emitEvent)
	}

	h := connection.GetConnection(url)
	defer func() {
		connection.ResetDefault()
		// let the final disconnect event print before returning
		if d, ok := h.(interface{ Done() <-chan struct{} }); ok {
			select {
			case <-d.Done():
			case <-time.After(closeWait):
			}
		}
	}()

	connected := make(chan struct{})
	var connectedOnce, emitOnce sync.Once
	ready := func() {
		connectedOnce.Do(func() { close(connected) })
		if opts.emitEvent == "" {
			return
		}
		emitOnce.Do(func() {
			if err := h.Emit(opts.emitEvent, emitArgs...); err != nil {
				output.PrintError("emit %s: %v", opts.emitEvent, err)
				return
			}
			output.PrintInfo("emitted %s", opts.emitEvent)
		})
	}

	h.On(socketio.EventConnect, func(args ...any) {
		output.PrintSuccess("connected (id %s)", h.ID())
		ready()
	})
	h.On(socketio.EventDisconnect, func(args ...any) {
		output.PrintWarning("disconnected: %v", firstOr(args, "unknown reason"))
	})
	h.On(socketio.EventConnectError, func(args ...any) {
		output.PrintError("connect failed: %v", firstOr(args, "unknown error"))
	})
	h.On(socketio.EventReconnectAttempt, func(args ...any) {
		output.PrintInfo("reconnecting (attempt %v)", firstOr(args, "?"))
	})

	for _, event := range opts.events {
		h.On(event, func(args ...any) {
			printEvent(event, args)
		})
	}

	// the socket may have connected before the listeners above were added
	if h.Connected() {
		output.PrintSuccess("connected (id %s)", h.ID())
		ready()
	}

	var warn <-chan time.Time
	if opts.waitWarning > 0 {
		timer := time.NewTimer(opts.waitWarning)
		defer timer.Stop()
		warn = timer.C
	}

	output.PrintInfo("connecting to %s (Ctrl+C to quit)", url)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Closing connection", "url", url)
			return nil
		case <-connected:
			connected = nil
			warn = nil
		case <-warn:
			output.PrintWarning("not connected after %s, still retrying", opts.waitWarning)
			warn = nil
		}
	}
}

// parseEmitData decodes --data into emit arguments. A JSON array spreads
// into several arguments; any other value is a single argument.
func parseEmitData(event, data string) ([]any, error) {
	if data == "" {
		return nil, nil
	}
	if event == "" {
		return nil, fmt.Errorf("--data requires --emit")
	}

	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("invalid --data JSON: %w", err)
	}
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	return []any{v}, nil
}

func printEvent(event string, args []any) {
	if output.GetOutputFormat() == output.FormatJSON {
		formatted, err := output.FormatAsJSON(map[string]any{"event": event, "args": args})
		if err != nil {
			output.PrintError("event %s: %v", event, err)
			return
		}
		output.Println(formatted)
		return
	}

	formatted, err := output.FormatAsJSON(args)
	if err != nil {
		formatted = fmt.Sprint(args...)
	}
	output.Println(event, formatted)
}

func firstOr(args []any, fallback any) any {
	if len(args) == 0 || args[0] == nil {
		return fallback
	}
	return args[0]
}

func init() {
	connectCmd.Flags().StringVar(&connectEmit, "emit", "", "Event to emit once connected")
	connectCmd.Flags().StringVar(&connectData, "data", "", "JSON payload for --emit; an array spreads into multiple arguments")
	connectCmd.Flags().StringSliceVar(&connectEvents, "on", nil, "Server events to print (repeatable)")
}
