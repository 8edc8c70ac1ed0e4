package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jroimartin/gocui"

	"go328mon/internal/logger"
	. "go328mon/m328mon"
)

type Config struct {
	URL         string
	Timeout     time.Duration
	FrequencyHz float64
	// AsmPath and CPath are sent by the compile keys.
	AsmPath string
	CPath   string
	Vector  int
	Log     *logger.Logger
}

type app struct {
	cfg        Config
	screen     *screen
	session    *Session
	dispatcher *ActionDispatcher
	tabs       *TabVisibility
}

// Run connects to the proxy and drives the terminal monitor until Ctrl+C
// or ctx is done. Losing the connection keeps the monitor open.
func Run(ctx context.Context, cfg Config) error {
	scr := newScreen()
	session, err := Connect(ctx, scr, cfg.Timeout, Options{
		URL:         cfg.URL,
		FrequencyHz: cfg.FrequencyHz,
		Log:         cfg.Log,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	tabs := NewTabVisibility()
	a := &app{
		cfg:        cfg,
		screen:     scr,
		session:    session,
		dispatcher: NewActionDispatcher(session, tabs),
		tabs:       tabs,
	}
	scr.status = a.statusText

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer g.Close()
	scr.attach(g)
	defer scr.detach()

	g.SetManagerFunc(a.layout)
	if err := a.bindKeys(g); err != nil {
		return err
	}

	go func() { _ = session.Run(ctx) }()
	go func() {
		<-ctx.Done()
		g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}()

	if err := g.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return ctx.Err()
}

func (a *app) statusText() string {
	st := a.session.State()
	text := fmt.Sprintf("| %s | %.0f Hz", st.URL, st.FrequencyHz)
	if st.FrequencyHz <= 0 {
		text = fmt.Sprintf("| %s | %v tick", st.URL, DefaultTick)
	}
	if st.HasMachine {
		text += fmt.Sprintf(" | #%d", st.Snapshots)
	}
	if st.LastError != "" {
		text += " | " + st.LastError
	}
	return text
}

func (a *app) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	if v, err := g.SetView("status", -1, -1, maxX, 1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}
	if v, err := g.SetView("keys", -1, maxY-2, maxX, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
		fmt.Fprint(v, keyHelp)
	}

	rects := paneRects(a.tabs, maxX, maxY)
	for _, tab := range Tabs() {
		name := viewName(tab)
		r, shown := rects[tab]
		if !shown {
			if err := g.DeleteView(name); err != nil && err != gocui.ErrUnknownView {
				return err
			}
			continue
		}
		v, err := g.SetView(name, r.x0, r.y0, r.x1, r.y1)
		if err == nil {
			continue
		}
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = tab.String()
		if tab == TabLog || tab == TabConsole {
			v.Wrap = true
		}
		a.screen.mu.Lock()
		a.screen.fill(tab, v)
		a.screen.mu.Unlock()
	}
	return a.screen.draw(g)
}

const keyHelp = " c asm  C c  s step  r run  x stop  e resume  R reset  i irq  1-4 panes  +/- freq  PgUp/PgDn log  ^C quit"

type binding struct {
	key     any
	handler func() error
}

func (a *app) bindKeys(g *gocui.Gui) error {
	bindings := []binding{
		{'c', func() error { return a.compile(a.cfg.AsmPath, ActionCompileAsm) }},
		{'C', func() error { return a.compile(a.cfg.CPath, ActionCompileC) }},
		{'s', a.action(ActionStep, nil)},
		{'r', a.action(ActionRun, nil)},
		{'x', a.action(ActionStop, nil)},
		{'e', a.action(ActionResume, nil)},
		{'R', a.action(ActionReset, nil)},
		{'i', a.action(ActionInterrupt, a.cfg.Vector)},
		{'1', a.action(ActionToggleTab, TabRegisters)},
		{'2', a.action(ActionToggleTab, TabStack)},
		{'3', a.action(ActionToggleTab, TabLog)},
		{'4', a.action(ActionToggleTab, TabConsole)},
		{'+', func() error { return a.scaleFrequency(2) }},
		{'-', func() error { return a.scaleFrequency(0.5) }},
	}
	for _, b := range bindings {
		handler := b.handler
		if err := g.SetKeybinding("", b.key, gocui.ModNone, func(*gocui.Gui, *gocui.View) error {
			return handler()
		}); err != nil {
			return err
		}
	}
	if err := g.SetKeybinding("", gocui.KeyPgup, gocui.ModNone, a.scrollLog(-1)); err != nil {
		return err
	}
	if err := g.SetKeybinding("", gocui.KeyPgdn, gocui.ModNone, a.scrollLog(1)); err != nil {
		return err
	}
	return g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit)
}

// action dispatches and reports failures in the log pane. They never end
// the main loop.
func (a *app) action(action Action, value any) func() error {
	return func() error {
		if err := a.dispatcher.Dispatch(action, value); err != nil {
			a.screen.AppendLog(fmt.Sprintf("%s: %v", action, err))
		}
		a.screen.refresh()
		return nil
	}
}

func (a *app) compile(path string, action Action) error {
	if path == "" {
		a.screen.AppendLog(fmt.Sprintf("%s: no source file given", action))
		return nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		a.screen.AppendLog(fmt.Sprintf("%s: %v", action, err))
		return nil
	}
	return a.action(action, string(src))()
}

func (a *app) scaleFrequency(factor float64) error {
	hz := a.session.Driver().Frequency()
	if hz <= 0 {
		hz = float64(time.Second / DefaultTick)
	}
	hz *= factor
	if hz < 0.5 {
		hz = 0.5
	}
	if hz > 1000 {
		hz = 1000
	}
	return a.action(ActionSetFrequency, hz)()
}

func (a *app) scrollLog(pages int) func(*gocui.Gui, *gocui.View) error {
	return func(g *gocui.Gui, _ *gocui.View) error {
		v, err := g.View(viewName(TabLog))
		if err != nil {
			return nil
		}
		_, h := v.Size()
		scroller{v}.scroll(pages * h)
		return nil
	}
}

func quit(*gocui.Gui, *gocui.View) error {
	return gocui.ErrQuit
}
