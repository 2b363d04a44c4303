package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/api"
	"github.com/keshucs12345/callsim/internal/events"
	"github.com/keshucs12345/callsim/internal/persona"
	"github.com/keshucs12345/callsim/internal/scenario"
	"github.com/keshucs12345/callsim/internal/schedule"
)

const consoleHelp = `commands:
  list                      built-in scenarios
  call <scenario|persona> [delay]
                            ring now, or after a delay (45s, 5m, or a preset: immediate, 1m, 5m, 10m, 30m)
  custom <situation>        ring now with a custom caller
  answer | decline | end    control the current call
  status                    show the current call
  schedule                  list scheduled calls
  cancel <id|all>           cancel scheduled calls
  quit`

// console drives calls from line-oriented input and prints call events.
type console struct {
	calls    api.Calls
	schedule api.Scheduler
	catalog  *scenario.Catalog

	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer, calls api.Calls, sched api.Scheduler, catalog *scenario.Catalog) *console {
	return &console{calls: calls, schedule: sched, catalog: catalog, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// handleEvent prints what a person holding the phone would notice.
func (c *console) handleEvent(e events.Event) {
	switch e.Type {
	case events.StateChanged:
		switch e.State {
		case "incoming":
			snap, _ := c.calls.Current()
			c.printf("📞 Incoming call: %s (answer / decline)", snap.Scenario.Title)
		case "active":
			c.printf("Connected.")
		case "ended":
			c.printf("Call ended (%s) after %s.", e.Outcome, formatElapsed(e.ElapsedSeconds))
		}
	case events.LineStarted:
		c.printf("  %d: %s", e.LineNumber, e.Line)
	case events.MissingCredential:
		c.printf("No OpenAI API key is configured, so the caller has nothing to say. Set OPENAI_API_KEY and try again, or end the call.")
	}
}

// formatElapsed renders seconds as m:ss.
func formatElapsed(secs int) string {
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// run reads commands until quit, EOF or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("Type 'help' for commands.")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || c.exec(line) {
				return
			}
		}
	}
}

// exec runs one command and reports whether the console should exit.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		c.printf("%s", consoleHelp)
	case "list", "ls":
		for _, sc := range c.catalog.All() {
			c.printf("  %-20s %-7s %-7s %s", sc.ID, sc.Persona, sc.Urgency, sc.Description)
		}
	case "call":
		err = c.call(args)
	case "custom":
		if len(args) == 0 {
			c.printf("usage: custom <situation>")
			return false
		}
		_, err = c.calls.Start(scenario.Scenario{Persona: persona.Custom, Situation: strings.Join(args, " ")})
	case "answer", "a":
		err = c.calls.Answer()
	case "decline", "d":
		err = c.calls.Decline()
	case "end", "e", "hangup":
		err = c.calls.End()
	case "status":
		c.status()
	case "schedule":
		c.listScheduled()
	case "cancel":
		err = c.cancel(args)
	default:
		c.printf("unknown command %q, type 'help'", cmd)
	}
	if err != nil {
		c.printf("error: %v", err)
	}
	return false
}

func (c *console) call(args []string) error {
	if len(args) == 0 {
		c.printf("usage: call <scenario|persona> [delay]")
		return nil
	}
	sc, ok := c.catalog.Get(args[0])
	if !ok {
		p, err := persona.Parse(args[0])
		if err != nil {
			return fmt.Errorf("no scenario or persona named %q", args[0])
		}
		sc = scenario.Scenario{Persona: p}
	}

	if len(args) < 2 {
		_, err := c.calls.Start(sc)
		return err
	}
	delay, err := parseDelay(args[1])
	if err != nil {
		return err
	}
	sched, err := c.schedule.Schedule(sc, delay)
	if err != nil {
		return err
	}
	c.printf("Scheduled %s in %s (id %s).", sched.Scenario.ID, schedule.FormatRemaining(delay), sched.ID)
	return nil
}

// parseDelay accepts a preset name or a Go duration.
func parseDelay(s string) (time.Duration, error) {
	if p, ok := schedule.PresetByName(s); ok {
		return p.Delay, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a preset or duration", schedule.ErrInvalidDelay, s)
	}
	return d, nil
}

func (c *console) status() {
	snap, ok := c.calls.Current()
	if !ok {
		c.printf("No call yet.")
		return
	}
	c.printf("%s: %s, %s elapsed", snap.Scenario.Title, snap.State, formatElapsed(snap.ElapsedSeconds))
	if snap.CurrentLine != "" {
		c.printf("  speaking: %s", snap.CurrentLine)
	}
}

func (c *console) listScheduled() {
	list := c.schedule.List()
	if len(list) == 0 {
		c.printf("No scheduled calls.")
		return
	}
	now := time.Now()
	for _, s := range list {
		c.printf("  %s  %-20s in %s", s.ID, s.Scenario.ID, schedule.FormatRemaining(s.Remaining(now)))
	}
}

func (c *console) cancel(args []string) error {
	if len(args) != 1 {
		c.printf("usage: cancel <id|all>")
		return nil
	}
	if args[0] == "all" {
		c.printf("Cancelled %d scheduled calls.", c.schedule.CancelAll())
		return nil
	}
	if err := c.schedule.Cancel(args[0]); err != nil {
		return err
	}
	c.printf("Cancelled.")
	return nil
}
