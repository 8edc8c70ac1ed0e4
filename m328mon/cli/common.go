package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"go328mon/internal/logger"
	"go328mon/internal/memory"
	"go328mon/internal/mcu"
	"go328mon/internal/rpc"
	"go328mon/m328mon"
	"go328mon/m328mon/monitor"
	"go328mon/m328mon/video"
)

type globals struct {
	URL     string
	Timeout time.Duration
	Wait    bool
	Verbose bool
}

func globalsFrom(args cliArgs) globals {
	return globals{
		URL:     args.URL,
		Timeout: args.Timeout,
		Wait:    args.Wait,
		Verbose: args.Verbose,
	}
}

func (g globals) logger() *logger.Logger {
	log := logger.New(logger.DefaultMaxEntries)
	if g.Verbose {
		log.SetEcho(os.Stderr)
	}
	return log
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openSession connects, starts the bus loop and optionally waits for the
// proxy greeting. The returned close func ends the session.
func openSession(ctx context.Context, g globals, view m328mon.DebugView) (*m328mon.Session, func(), error) {
	session, err := m328mon.Connect(ctx, view, g.Timeout, m328mon.Options{
		URL: g.URL,
		Log: g.logger(),
	})
	if err != nil {
		return nil, nil, err
	}
	go func() { _ = session.Run(ctx) }()
	closeFn := func() {
		_ = session.Close()
		<-session.Bus().Done()
	}
	if g.Wait {
		if err := session.WaitReady(ctx, g.Timeout); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	return session, closeFn, nil
}

func cmdMonitor(g globals, args cliMonitorCmd) int {
	hz, err := memory.ParseFrequency(args.Frequency)
	if err != nil {
		return fail(err)
	}
	vector, err := mcu.ParseVector(args.Vector)
	if err != nil {
		return fail(err)
	}
	ctx, stop := signalContext()
	defer stop()
	err = monitor.Run(ctx, monitor.Config{
		URL:         g.URL,
		Timeout:     g.Timeout,
		FrequencyHz: hz,
		AsmPath:     args.Asm,
		CPath:       args.CSource,
		Vector:      vector,
		Log:         g.logger(),
	})
	if err != nil && err != context.Canceled {
		return fail(err)
	}
	return 0
}

func cmdGUI(g globals, args cliGUICmd) int {
	hz, err := memory.ParseFrequency(args.Frequency)
	if err != nil {
		return fail(err)
	}
	ctx, stop := signalContext()
	defer stop()
	cfg := video.Config{
		URL:         g.URL,
		Timeout:     g.Timeout,
		FrequencyHz: hz,
		Zoom:        args.Zoom,
		Log:         g.logger(),
	}
	if g.Verbose {
		cfg.Echo = os.Stdout
	}
	err = video.Run(ctx, cfg)
	if err != nil && err != context.Canceled {
		return fail(err)
	}
	return 0
}

func colorizedHelpPrinter(base kong.HelpPrinter) kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		out := ctx.Stdout
		var buf bytes.Buffer
		ctx.Stdout = &buf
		err := base(options, ctx)
		ctx.Stdout = out
		if err != nil {
			return err
		}
		text := buf.String()
		if !helpColorEnabled() {
			_, werr := io.WriteString(out, text)
			return werr
		}
		_, werr := io.WriteString(out, colorizeHelpText(text))
		return werr
	}
}

func colorSetting(env string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(env))) {
	case "always":
		return true, true
	case "never":
		return false, true
	}
	return false, false
}

func helpColorEnabled() bool {
	if on, set := colorSetting("GO328MON_HELP_COLOR"); set {
		return on
	}
	return stdoutIsTerminal()
}

func stdoutIsTerminal() bool {
	if t := os.Getenv("TERM"); t == "" || t == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func colorizeHelpText(text string) string {
	const (
		reset = "\x1b[0m"
		head  = "\x1b[1;36m"
		cmd   = "\x1b[1;33m"
		flag  = "\x1b[32m"
		dim   = "\x1b[2m"
	)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trim := strings.TrimSpace(line)
		leading := len(line) - len(strings.TrimLeft(line, " "))
		if strings.HasPrefix(trim, "Usage:") ||
			trim == "Commands:" ||
			trim == "Arguments:" ||
			trim == "Flags:" {
			lines[i] = head + trim + reset
			continue
		}
		if strings.HasPrefix(trim, "Run \"") {
			lines[i] = dim + line + reset
			continue
		}
		if leading <= 6 && strings.HasPrefix(trim, "-") {
			lines[i] = colorizeHelpLeadingToken(line, flag, reset)
			continue
		}
		if leading == 2 && trim != "" && !strings.HasPrefix(trim, "-") &&
			(strings.Contains(trim, "  ") || strings.Contains(trim, "(")) {
			lines[i] = colorizeHelpLeadingToken(line, cmd, reset)
		}
	}
	return strings.Join(lines, "\n")
}

func colorizeHelpLeadingToken(line string, color string, reset string) string {
	indent := line[:len(line)-len(strings.TrimLeft(line, " "))]
	trim := strings.TrimSpace(line)
	sep := strings.Index(trim, "  ")
	if sep < 0 {
		return indent + color + trim + reset
	}
	return indent + color + trim[:sep] + reset + trim[sep:]
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, formatCliError(err))
	return 1
}

// formatCliError picks a badge from the error kind so scripts can tell a
// dead proxy from a bad reply.
func formatCliError(err error) string {
	if err == nil {
		return ""
	}
	var (
		transportErr *rpc.TransportError
		parseErr     *rpc.ParseError
		encodingErr  *rpc.EncodingError
		stateErr     *mcu.MalformedStateError
	)
	switch {
	case errors.As(err, &transportErr):
		return formatCliBadge("NET", err.Error())
	case errors.Is(err, rpc.ErrClosed):
		return formatCliBadge("NET", err.Error())
	case errors.Is(err, m328mon.ErrTimeout):
		return formatCliBadge("TIME", err.Error())
	case errors.As(err, &stateErr):
		return formatCliBadge("STATE", err.Error())
	case errors.As(err, &parseErr), errors.As(err, &encodingErr):
		return formatCliBadge("WIRE", err.Error())
	}
	return formatCliBadge("ERR", err.Error())
}

func formatCliBadge(code string, msg string) string {
	badge := " " + code + " "
	if cliColorEnabled() {
		return "\x1b[41;97;1m" + badge + "\x1b[0m " + msg
	}
	return "[" + code + "] " + msg
}

func cliColorEnabled() bool {
	if on, set := colorSetting("GO328MON_COLOR"); set {
		return on
	}
	if t := os.Getenv("TERM"); t == "" || t == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func formatOnOffBadge(enabled bool) string {
	text := "OFF"
	if enabled {
		text = "ON "
	}
	badge := " " + text + " "
	if !cliColorEnabled() {
		return badge
	}
	if enabled {
		return "\x1b[42;30m" + badge + "\x1b[0m"
	}
	return "\x1b[41;97;1m" + badge + "\x1b[0m"
}
