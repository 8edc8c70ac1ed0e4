package video

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"go328mon/internal/logger"
	"go328mon/internal/mcu"
	"go328mon/m328mon"
)

const (
	windowTitle  = "go328mon"
	windowWidth  = 560
	windowHeight = 420
	logLines     = 8
	consoleBytes = 256
	lineHeight   = 16
)

type Config struct {
	URL         string
	Timeout     time.Duration
	FrequencyHz float64
	Zoom        int
	Log         *logger.Logger
	// Echo also prints log and console lines as text when set.
	Echo        io.Writer
}

// board is the DebugView of the window. The bus loop writes it and the
// ebiten loop reads it.
type board struct {
	mu        sync.Mutex
	state     mcu.MachineState
	has       bool
	stack     []string
	log       []string
	console   string
	running   bool
	connected bool
}

func (b *board) ShowState(st mcu.MachineState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = st
	b.has = true
}

func (b *board) ShowStack(st mcu.MachineState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stack = mcu.FormatStack(st)
}

func (b *board) AppendLog(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, strings.TrimRight(line, "\n"))
	if over := len(b.log) - logLines; over > 0 {
		b.log = append([]string(nil), b.log[over:]...)
	}
}

func (b *board) AppendConsole(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.console = keepTail(b.console+text, consoleBytes)
}

// keepTail cuts s to at most limit bytes from the end without splitting a
// rune.
func keepTail(s string, limit int) string {
	over := len(s) - limit
	if over <= 0 {
		return s
	}
	for over < len(s) && !utf8.RuneStart(s[over]) {
		over++
	}
	return s[over:]
}

func (b *board) SetRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
}

func (b *board) SetConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

func (b *board) text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out strings.Builder
	mode := "IDLE"
	if b.running {
		mode = "RUN"
	}
	link := "offline"
	if b.connected {
		link = "online"
	}
	fmt.Fprintf(&out, "%s  %s   [S]tep [R]un [X]stop [E]resume\n\n", link, mode)
	if !b.has {
		out.WriteString("waiting for mcu state\n")
	} else {
		fmt.Fprintf(&out, "PC %s   SP %03X   SREG %s\n\n", mcu.FormatPC(b.state), b.state.StackPointer, mcu.FormatSREG(b.state))
		for _, row := range mcu.FormatRegisters(b.state, 4) {
			out.WriteString(row + "\n")
		}
		out.WriteString("\nstack:")
		if len(b.stack) == 0 {
			out.WriteString(" empty")
		}
		for i, row := range b.stack {
			if i == 8 {
				fmt.Fprintf(&out, " +%d", len(b.stack)-i)
				break
			}
			out.WriteString(" " + row)
		}
		out.WriteString("\n")
	}
	out.WriteString("\n")
	for _, line := range b.log {
		out.WriteString(line + "\n")
	}
	if b.console != "" {
		out.WriteString("console: " + lastLine(b.console) + "\n")
	}
	return out.String()
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[i+1:]
	}
	return text
}

type keyAction struct {
	key    ebiten.Key
	action m328mon.Action
}

var keyActions = []keyAction{
	{ebiten.KeyS, m328mon.ActionStep},
	{ebiten.KeyR, m328mon.ActionRun},
	{ebiten.KeyX, m328mon.ActionStop},
	{ebiten.KeyE, m328mon.ActionResume},
}

type window struct {
	ctx        context.Context
	board      *board
	actions    chan m328mon.Action
	errCh      chan string
	lastError  string
	errorUntil time.Time
}

func (w *window) handleInput() {
	for _, ka := range keyActions {
		if !inpututil.IsKeyJustPressed(ka.key) {
			continue
		}
		select {
		case w.actions <- ka.action:
		default:
		}
	}
}

func (w *window) handleErrors() {
	for {
		select {
		case msg := <-w.errCh:
			if msg != "" && (msg != w.lastError || time.Now().After(w.errorUntil)) {
				w.lastError = msg
				w.errorUntil = time.Now().Add(5 * time.Second)
				ebiten.SetWindowTitle(windowTitle + " - " + msg)
			}
			continue
		default:
		}
		break
	}
	if w.lastError != "" && time.Now().After(w.errorUntil) {
		w.lastError = ""
		ebiten.SetWindowTitle(windowTitle)
	}
}

func (w *window) Update() error {
	if w.ctx.Err() != nil {
		return ebiten.Termination
	}
	w.handleErrors()
	w.handleInput()
	return nil
}

func (w *window) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	for i, line := range strings.Split(w.board.text(), "\n") {
		ebitenutil.DebugPrintAt(screen, line, 8, 4+i*lineHeight)
	}
}

func (w *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowWidth, windowHeight
}

func sinkFor(b *board, echo io.Writer) m328mon.DebugView {
	if echo == nil {
		return b
	}
	text := m328mon.NewTextView(echo)
	text.SetQuietState(true)
	return m328mon.MultiView{b, text}
}

// Run opens the window and connects it to the proxy. Closing the window
// ends the session.
func Run(ctx context.Context, cfg Config) error {
	b := &board{}
	session, err := m328mon.Connect(ctx, sinkFor(b, cfg.Echo), cfg.Timeout, m328mon.Options{
		URL:         cfg.URL,
		FrequencyHz: cfg.FrequencyHz,
		Log:         cfg.Log,
	})
	if err != nil {
		return err
	}
	defer session.Close()
	go func() { _ = session.Run(ctx) }()

	w := &window{
		ctx:     ctx,
		board:   b,
		actions: make(chan m328mon.Action, 16),
		errCh:   make(chan string, 4),
	}
	dispatcher := m328mon.NewActionDispatcher(session, nil)
	go func() {
		for action := range w.actions {
			if err := dispatcher.Dispatch(action, nil); err != nil {
				select {
				case w.errCh <- err.Error():
				default:
				}
			}
		}
	}()
	defer close(w.actions)

	zoom := cfg.Zoom
	if zoom < 1 {
		zoom = 1
	}
	ebiten.SetWindowTitle(windowTitle)
	ebiten.SetWindowResizable(true)
	ebiten.SetWindowSize(windowWidth*zoom, windowHeight*zoom)
	return ebiten.RunGame(w)
}
