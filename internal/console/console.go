// Package console provides the interactive operator prompt for a session.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/protocol/envelope"
	"github.com/danmuck/wearctl/internal/wearable"
)

// Controller is the session surface the console drives.
type Controller interface {
	Snapshot() wearable.Snapshot
	SendMessage(msgType envelope.MsgType, data any) error
	SendHaptic(times int) error
	SetColor(red, green, blue int) error
	Disconnect() error
	On(kind hub.Kind, o hub.Observer)
}

var _ Controller = (*wearable.Session)(nil)

var errQuit = errors.New("quit")

// Console runs commands against one session.
type Console struct {
	sess Controller
	rl   *readline.Instance
}

// New creates the prompt and subscribes to every notification kind so they
// print as they arrive.
func New(sess Controller) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wearctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := &Console{sess: sess, rl: rl}
	for _, kind := range hub.Kinds() {
		sess.On(kind, hub.ObserverFunc(func(n hub.Notification) {
			printNotification(c.rl.Stdout(), n)
		}))
	}
	return c, nil
}

// Stdout coordinates log output with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done. cancel is called when
// the operator leaves.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.rl.Close() })
	defer stop()

	printHelp(c.rl.Stdout())
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && ctx.Err() == nil {
				continue
			}
			cancel()
			return
		}
		if err := Exec(c.sess, line, c.rl.Stdout()); errors.Is(err, errQuit) {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns errQuit for quit and prints
// everything else to out.
func Exec(sess Controller, line string, out io.Writer) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		printHelp(out)
	case "status", "s":
		printStatus(out, sess.Snapshot())
	case "haptic", "h":
		times := 0
		if len(args) > 0 {
			if times, err = strconv.Atoi(args[0]); err != nil {
				err = fmt.Errorf("haptic: invalid count %q", args[0])
				break
			}
		}
		err = sess.SendHaptic(times)
	case "lights", "l":
		err = cmdLights(sess, args)
	case "send":
		err = cmdSend(sess, line, args)
	case "disconnect", "d":
		err = sess.Disconnect()
	case "quit", "exit", "q":
		return errQuit
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		return nil
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return err
	}
	return nil
}

func cmdLights(sess Controller, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: lights <r> <g> <b>")
	}
	var rgb [3]int
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("lights: invalid component %q", arg)
		}
		rgb[i] = v
	}
	return sess.SetColor(rgb[0], rgb[1], rgb[2])
}

// cmdSend sends an arbitrary envelope. Everything after the type is taken
// verbatim as the JSON data.
func cmdSend(sess Controller, line string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: send <type> [json]")
	}
	msgType := envelope.MsgType(args[0])
	rest := dropFields(line, 2)
	if rest == "" {
		return sess.SendMessage(msgType, nil)
	}
	if !json.Valid([]byte(rest)) {
		return fmt.Errorf("send: data is not valid json")
	}
	return sess.SendMessage(msgType, json.RawMessage(rest))
}

// dropFields removes the first n whitespace-separated fields of s.
func dropFields(s string, n int) string {
	for i := 0; i < n; i++ {
		s = strings.TrimLeft(s, " \t")
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = s[idx:]
	}
	return strings.TrimSpace(s)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
wearctl commands:
  status             - Show session state and identity
  haptic [n]         - Pulse the motor n times (default 1)
  lights <r> <g> <b> - Set the light color
  send <type> [json] - Send an arbitrary message
  disconnect         - Disconnect the wearable
  quit               - Exit`)
}

func printStatus(out io.Writer, snap wearable.Snapshot) {
	fmt.Fprintf(out, "session:  %s\n", snap.ID)
	fmt.Fprintf(out, "state:    %s\n", snap.State)
	if snap.Identity != "" {
		fmt.Fprintf(out, "identity: %s\n", snap.Identity)
	}
	if snap.StartedAt != nil {
		fmt.Fprintf(out, "started:  %s\n", snap.StartedAt.Format(time.RFC3339))
	}
	if snap.EndedAt != nil {
		fmt.Fprintf(out, "ended:    %s\n", snap.EndedAt.Format(time.RFC3339))
	}
}

func printNotification(out io.Writer, n hub.Notification) {
	switch {
	case n.Err != nil:
		fmt.Fprintf(out, "[%s] error: %v\n", n.Kind, n.Err)
	case n.Kind == hub.KindSignal:
		fmt.Fprintf(out, "[%s] strength=%d\n", n.Kind, n.Strength)
	default:
		fmt.Fprintf(out, "[%s]\n", n.Kind)
	}
}
