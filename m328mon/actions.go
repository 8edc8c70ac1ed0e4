package m328mon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go328mon/internal/mcu"
	"go328mon/internal/rpc"
)

type Action int

const (
	ActionCompileAsm Action = iota + 1
	ActionCompileC
	ActionCompileFile
	ActionStep
	ActionRun
	ActionStop
	ActionResume
	ActionReset
	ActionInterrupt
	ActionPing
	ActionTest
	ActionSetFrequency
	ActionToggleTab
)

var actionNames = map[Action]string{
	ActionCompileAsm:   "compile asm",
	ActionCompileC:     "compile c",
	ActionCompileFile:  "compile file",
	ActionStep:         "step",
	ActionRun:          "run",
	ActionStop:         "stop",
	ActionResume:       "resume",
	ActionReset:        "reset",
	ActionInterrupt:    "interrupt",
	ActionPing:         "ping",
	ActionTest:         "test",
	ActionSetFrequency: "set frequency",
	ActionToggleTab:    "toggle tab",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

type ActionDispatcher struct {
	session *Session
	tabs    *TabVisibility
}

func NewActionDispatcher(s *Session, tabs *TabVisibility) *ActionDispatcher {
	if tabs == nil {
		tabs = NewTabVisibility()
	}
	return &ActionDispatcher{session: s, tabs: tabs}
}

func (d *ActionDispatcher) Tabs() *TabVisibility { return d.tabs }

// Dispatch performs action. A failure is also kept as the session's last
// error so views can show it.
func (d *ActionDispatcher) Dispatch(action Action, value any) error {
	err := d.dispatch(action, value)
	if err != nil {
		d.session.store.setLastError(fmt.Sprintf("%s: %v", action, err))
		d.session.log.Logf("action", "%s failed: %v", action, err)
	}
	return err
}

func (d *ActionDispatcher) dispatch(action Action, value any) error {
	s := d.session
	switch action {
	case ActionCompileAsm:
		src, err := stringValue(action, value)
		if err != nil {
			return err
		}
		return d.compile(rpc.EventCompileAsm, src)
	case ActionCompileC:
		src, err := stringValue(action, value)
		if err != nil {
			return err
		}
		return d.compile(rpc.EventCompileC, src)
	case ActionCompileFile:
		path, err := stringValue(action, value)
		if err != nil {
			return err
		}
		return d.compileFile(path)
	case ActionStep:
		return s.bus.Emit(rpc.EventExecuteCycle, nil)
	case ActionRun:
		return s.driver.Run()
	case ActionStop:
		s.driver.Stop()
	case ActionResume:
		return s.bus.Emit(rpc.EventResume, nil)
	case ActionReset:
		s.gate.Reset()
		return s.bus.Emit(rpc.EventReset, nil)
	case ActionInterrupt:
		vector, err := vectorValue(value)
		if err != nil {
			return err
		}
		return s.bus.Emit(rpc.EventInterrupt, vector)
	case ActionPing:
		return s.bus.Emit(rpc.EventPing, nil)
	case ActionTest:
		if value == nil {
			value = "test"
		}
		return s.bus.Emit(rpc.EventTest, value)
	case ActionSetFrequency:
		hz, ok := value.(float64)
		if !ok || hz < 0 {
			return fmt.Errorf("invalid frequency %v", value)
		}
		s.driver.SetFrequency(hz)
		s.store.setFrequency(hz)
	case ActionToggleTab:
		tab, ok := value.(Tab)
		if !ok {
			return fmt.Errorf("invalid tab %v", value)
		}
		d.tabs.Toggle(tab)
	default:
		return fmt.Errorf("unknown action %d", int(action))
	}
	return nil
}

func (d *ActionDispatcher) compileFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	event := rpc.EventCompileAsm
	if strings.EqualFold(filepath.Ext(path), ".c") {
		event = rpc.EventCompileC
	}
	if err := d.compile(event, string(src)); err != nil {
		return err
	}
	d.session.store.setSourcePath(path)
	return nil
}

func (d *ActionDispatcher) compile(event, src string) error {
	if err := d.session.bus.Emit(event, src); err != nil {
		return err
	}
	d.session.gate.Reset()
	return nil
}

func stringValue(action Action, value any) (string, error) {
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s needs a string, got %T", action, value)
	}
	return text, nil
}

func vectorValue(value any) (int, error) {
	switch v := value.(type) {
	case int:
		if v < 0 || v >= len(mcu.Vectors) {
			return 0, fmt.Errorf("interrupt vector %d out of range", v)
		}
		return v, nil
	case string:
		return mcu.ParseVector(v)
	}
	return 0, fmt.Errorf("invalid interrupt vector %v", value)
}
