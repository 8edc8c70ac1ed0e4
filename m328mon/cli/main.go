package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
)

func Main(argv []string) int {
	args, parsed, err := parseCLI(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, formatCliError(err))
		return 2
	}
	g := globalsFrom(args)
	selected := parsed.Selected()
	if selected == nil {
		return cmdMonitor(g, args.Monitor)
	}
	switch normalizeSelectedPath(selected.Path()) {
	case "monitor":
		return cmdMonitor(g, args.Monitor)
	case "gui":
		return cmdGUI(g, args.GUI)
	case "compile asm":
		return cmdCompile(g, args.Compile.Asm.Path, false)
	case "compile c":
		return cmdCompile(g, args.Compile.C.Path, true)
	case "step":
		return cmdStep(g, args.Step)
	case "run":
		return cmdRun(g, args.Run)
	case "resume":
		return cmdResume(g)
	case "reset":
		return cmdReset(g)
	case "interrupt":
		return cmdInterrupt(g, args.Interrupt.Vector)
	case "ping":
		return cmdPing(g)
	case "test":
		return cmdTest(g, args.Test)
	case "state":
		return cmdState(g, args.State)
	case "mem", "mem dump":
		return cmdMemDump(g, args.Mem.Dump)
	case "shell":
		return cmdShell(g)
	default:
		return 2
	}
}

func normalizeSelectedPath(path string) string {
	path = cliPathAliasPattern.ReplaceAllString(path, "")
	return strings.Join(strings.Fields(strings.ReplaceAll(path, ".", " ")), " ")
}

func newParser(args *cliArgs, options ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("go328mon"),
		kong.Description("ATmega328p debug console client."),
		kong.Vars(cliVars),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:   true,
			FlagsLast: true,
		}),
		kong.Help(colorizedHelpPrinter(kong.DefaultHelpPrinter)),
		kong.ShortHelp(colorizedHelpPrinter(kong.DefaultShortHelpPrinter)),
	}
	return kong.New(args, append(base, options...)...)
}

func parseCLI(argv []string) (cliArgs, *kong.Context, error) {
	var args cliArgs
	parser, err := newParser(&args)
	if err != nil {
		return args, nil, err
	}
	parsed, err := parser.Parse(argv)
	if err != nil {
		return args, nil, err
	}
	return args, parsed, nil
}
