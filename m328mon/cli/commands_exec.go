package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"go328mon/internal/mcu"
	"go328mon/internal/memory"
	"go328mon/m328mon"
)

func withSession(g globals, quiet bool, fn func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error) int {
	ctx, stop := signalContext()
	defer stop()
	view := m328mon.NewTextView(os.Stdout)
	view.SetQuietState(quiet)
	session, closeFn, err := openSession(ctx, g, view)
	if err != nil {
		return fail(err)
	}
	defer closeFn()
	if err := fn(ctx, session, m328mon.NewActionDispatcher(session, nil)); err != nil {
		if err == context.Canceled {
			return 0
		}
		return fail(err)
	}
	return 0
}

func cmdCompile(g globals, pathArg string, isC bool) int {
	path, err := expandPath(pathArg)
	if err != nil {
		return fail(err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	action := m328mon.ActionCompileAsm
	if isC {
		action = m328mon.ActionCompileC
	}
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		if err := d.Dispatch(action, string(src)); err != nil {
			return err
		}
		// Compile output arrives as log lines; give the proxy one timeout
		// window to report before hanging up.
		lingerFor(ctx, s, g.Timeout)
		return nil
	})
}

func cmdStep(g globals, args cliStepCmd) int {
	if args.Count < 1 {
		return fail(fmt.Errorf("Count must be > 0."))
	}
	return withSession(g, args.Quiet, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		start := s.State().Snapshots
		for i := 0; i < args.Count; i++ {
			if err := d.Dispatch(m328mon.ActionStep, nil); err != nil {
				return err
			}
		}
		want := start + uint64(args.Count)
		err := s.WaitFor(ctx, g.Timeout, "mcu state", func(st m328mon.AppStateData) bool {
			return st.Snapshots >= want
		})
		if args.Quiet {
			if st := s.State(); st.HasMachine {
				fmt.Println(mcu.Summary(st.Machine))
			}
		}
		return err
	})
}

func cmdRun(g globals, args cliRunCmd) int {
	hz, err := memory.ParseFrequency(args.Frequency)
	if err != nil {
		return fail(err)
	}
	return withSession(g, args.Quiet, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		if err := d.Dispatch(m328mon.ActionSetFrequency, hz); err != nil {
			return err
		}
		if err := d.Dispatch(m328mon.ActionRun, nil); err != nil {
			return err
		}
		defer d.Dispatch(m328mon.ActionStop, nil)

		var deadline <-chan time.Time
		if args.For > 0 {
			timer := time.NewTimer(args.For)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-ctx.Done():
		case <-deadline:
		case <-s.Bus().Done():
			return fmt.Errorf("connection closed while running")
		}
		snapshots := s.State().Snapshots
		fmt.Printf("stopped after %d snapshots\n", snapshots)
		return nil
	})
}

func cmdResume(g globals) int {
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		return d.Dispatch(m328mon.ActionResume, nil)
	})
}

func cmdReset(g globals) int {
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		return d.Dispatch(m328mon.ActionReset, nil)
	})
}

func cmdInterrupt(g globals, vectorArg string) int {
	vector, err := mcu.ParseVector(vectorArg)
	if err != nil {
		return fail(err)
	}
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		if err := d.Dispatch(m328mon.ActionInterrupt, vector); err != nil {
			return err
		}
		fmt.Printf("raised %s (%d)\n", mcu.VectorName(vector), vector)
		return nil
	})
}

func cmdPing(g globals) int {
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		start := time.Now()
		if err := d.Dispatch(m328mon.ActionPing, nil); err != nil {
			return err
		}
		err := s.WaitFor(ctx, g.Timeout, "pong", func(st m328mon.AppStateData) bool { return st.Pongs > 0 })
		if err != nil {
			return err
		}
		fmt.Printf("pong from %s in %v\n", g.URL, time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func cmdTest(g globals, args cliTestCmd) int {
	var payload any
	if args.Payload != nil {
		payload = *args.Payload
	}
	return withSession(g, false, func(ctx context.Context, s *m328mon.Session, d *m328mon.ActionDispatcher) error {
		if err := d.Dispatch(m328mon.ActionTest, payload); err != nil {
			return err
		}
		lingerFor(ctx, s, g.Timeout)
		return nil
	})
}

// lingerFor keeps the session open for d so late notifications still get
// printed. It returns early when the connection ends.
func lingerFor(ctx context.Context, s *m328mon.Session, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-s.Bus().Done():
	}
}
