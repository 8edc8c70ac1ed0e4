package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go328mon/internal/mcu"
	"go328mon/internal/memory"
	"go328mon/m328mon"
)

const shellHelpText = "commands: compile(c) <file>, step(s) [n], run(r) [hz], stop(x), resume(e), reset, irq <vector>, freq <hz>, ping, test [text], status, q"

type shellCommand struct {
	action m328mon.Action
	value  any
	repeat int
	// thenRun starts run mode after the action, for "run <hz>".
	thenRun bool
	// status, help and quit are handled by the shell itself.
	status bool
	help   bool
	quit   bool
}

func parseShellLine(line string) (shellCommand, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return shellCommand{}, errors.New("empty command")
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	one := func(action m328mon.Action) (shellCommand, error) {
		return shellCommand{action: action, repeat: 1}, nil
	}
	switch cmd {
	case "q", "quit", "exit":
		return shellCommand{quit: true}, nil
	case "help", "?":
		return shellCommand{help: true}, nil
	case "status", "st":
		return shellCommand{status: true}, nil
	case "compile", "c":
		if len(args) != 1 {
			return shellCommand{}, errors.New("Usage: compile <file>")
		}
		path, err := expandPath(args[0])
		if err != nil {
			return shellCommand{}, err
		}
		return shellCommand{action: m328mon.ActionCompileFile, value: path, repeat: 1}, nil
	case "step", "s":
		n := 1
		if len(args) == 1 {
			parsed, err := memory.ParsePositiveInt(args[0])
			if err != nil {
				return shellCommand{}, err
			}
			n = parsed
		} else if len(args) > 1 {
			return shellCommand{}, errors.New("Usage: step [n]")
		}
		return shellCommand{action: m328mon.ActionStep, repeat: n}, nil
	case "run", "r":
		if len(args) == 0 {
			return one(m328mon.ActionRun)
		}
		hz, err := memory.ParseFrequency(args[0])
		if err != nil {
			return shellCommand{}, err
		}
		return shellCommand{action: m328mon.ActionSetFrequency, value: hz, repeat: 1, thenRun: true}, nil
	case "stop", "x":
		return one(m328mon.ActionStop)
	case "resume", "e":
		return one(m328mon.ActionResume)
	case "reset":
		return one(m328mon.ActionReset)
	case "irq", "interrupt", "i":
		if len(args) != 1 {
			return shellCommand{}, errors.New("Usage: irq <vector>")
		}
		vector, err := mcu.ParseVector(args[0])
		if err != nil {
			return shellCommand{}, err
		}
		return shellCommand{action: m328mon.ActionInterrupt, value: vector, repeat: 1}, nil
	case "freq", "f":
		if len(args) != 1 {
			return shellCommand{}, errors.New("Usage: freq <hz>")
		}
		hz, err := memory.ParseFrequency(args[0])
		if err != nil {
			return shellCommand{}, err
		}
		return shellCommand{action: m328mon.ActionSetFrequency, value: hz, repeat: 1}, nil
	case "ping":
		return one(m328mon.ActionPing)
	case "test":
		var payload any
		if len(args) > 0 {
			payload = strings.Join(args, " ")
		}
		return shellCommand{action: m328mon.ActionTest, value: payload, repeat: 1}, nil
	}
	return shellCommand{}, errors.New("Unknown command. " + shellHelpText)
}

func cmdShell(g globals) int {
	ctx, stop := signalContext()
	defer stop()
	view := m328mon.NewTextView(os.Stdout)
	session, closeFn, err := openSession(ctx, g, view)
	if err != nil {
		return fail(err)
	}
	defer closeFn()
	d := m328mon.NewActionDispatcher(session, nil)

	fmt.Println(shellHelpText)
	reader := bufio.NewReader(os.Stdin)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	for {
		fmt.Print("mcu> ")
		line, interrupted, err := readInteractiveLine(reader, sigCh)
		if interrupted {
			fmt.Println()
			return 0
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return 0
			}
			return fail(err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := parseShellLine(line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		switch {
		case cmd.quit:
			return 0
		case cmd.help:
			fmt.Println(shellHelpText)
			continue
		case cmd.status:
			printSessionStatus(session.State())
			continue
		}
		if err := runShellCommand(d, cmd); err != nil {
			fmt.Println(formatCliError(err))
		}
	}
}

func runShellCommand(d *m328mon.ActionDispatcher, cmd shellCommand) error {
	for i := 0; i < cmd.repeat; i++ {
		if err := d.Dispatch(cmd.action, cmd.value); err != nil {
			return err
		}
	}
	if cmd.thenRun {
		return d.Dispatch(m328mon.ActionRun, nil)
	}
	return nil
}

func printSessionStatus(st m328mon.AppStateData) {
	fmt.Printf("url        %s\n", st.URL)
	fmt.Printf("connected  %s\n", formatOnOffBadge(st.Connected))
	fmt.Printf("running    %s\n", formatOnOffBadge(st.Running))
	if st.FrequencyHz > 0 {
		fmt.Printf("frequency  %g Hz\n", st.FrequencyHz)
	} else {
		fmt.Printf("frequency  %v tick\n", m328mon.DefaultTick)
	}
	fmt.Printf("snapshots  %d (stack rebuilt %d)\n", st.Snapshots, st.StackRebuilds)
	if st.HasMachine {
		fmt.Println(mcu.Summary(st.Machine))
	}
	if st.SourcePath != "" {
		fmt.Printf("source     %s\n", st.SourcePath)
	}
	if st.LastError != "" {
		fmt.Printf("last error %s\n", st.LastError)
	}
	if st.LastMalformed != "" {
		fmt.Printf("bad state  %s\n", st.LastMalformed)
	}
}

func readInteractiveLine(reader *bufio.Reader, sigCh <-chan os.Signal) (string, bool, error) {
	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()
	select {
	case <-sigCh:
		return "", true, nil
	case err := <-errCh:
		return "", false, err
	case line := <-lineCh:
		return line, false, nil
	}
}
