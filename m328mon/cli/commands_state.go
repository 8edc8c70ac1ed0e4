package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go328mon/internal/mcu"
	"go328mon/internal/memory"
	"go328mon/internal/memorymap"
	"go328mon/m328mon"
)

func cmdState(g globals, args cliStateCmd) int {
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		start := s.State().Snapshots
		if args.Step {
			if err := d.Dispatch(m328mon.ActionStep, nil); err != nil {
				return err
			}
		}
		return s.WaitFor(ctx, g.Timeout, "mcu state", func(st m328mon.AppStateData) bool {
			return st.Snapshots > start
		})
	})
}

func cmdMemDump(g globals, args cliMemDumpCmd) int {
	start, err := parseAddress(args.Start)
	if err != nil {
		return fail(err)
	}
	length, err := memory.ParseNumber(args.Length)
	if err != nil {
		return fail(err)
	}
	columns := 16
	if args.Columns != nil {
		columns = *args.Columns
	}
	if columns <= 0 {
		return fail(fmt.Errorf("Columns must be > 0."))
	}

	var (
		mu       sync.Mutex
		words    []uint16
		memErr   error
		captured bool
	)
	return withSession(g, true, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		s.OnRawState(func(data json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			if captured {
				return
			}
			words, memErr = mcu.DecodeMemory(data)
			captured = true
		})
		if args.Step {
			if err := d.Dispatch(m328mon.ActionStep, nil); err != nil {
				return err
			}
		}
		err := s.WaitFor(ctx, g.Timeout, "mcu state", func(m328mon.AppStateData) bool {
			mu.Lock()
			defer mu.Unlock()
			return captured
		})
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if memErr != nil {
			return memErr
		}
		buf := memory.Slice(words, start, length)
		if args.JSON {
			out, err := memory.DumpJSON(start, buf)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		if args.Symbols {
			fmt.Print(symbolDump(start, buf))
			return nil
		}
		fmt.Println(memory.DumpHuman(start, buf, columns, true, !args.NoASCII))
		return nil
	})
}

func symbolDump(start int, buf []uint16) string {
	var b strings.Builder
	for i, v := range buf {
		addr := start + i
		name, ok := memorymap.Name(uint16(addr))
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%04X  %-7s %02X\n", addr, name, v)
	}
	return b.String()
}

func parseAddress(value string) (int, error) {
	if addr, ok := memorymap.Find(value); ok && !startsWithDigit(value) {
		return int(addr), nil
	}
	return memory.ParseNumber(value)
}

func startsWithDigit(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && (value[0] >= '0' && value[0] <= '9' || value[0] == '$')
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}
	return abs, nil
}
