package cli

import (
	"regexp"
	"time"

	"go328mon/internal/rpc"
)

type cliArgs struct {
	URL     string        `short:"u" env:"GO328MON_URL" default:"${default_url}" help:"Proxy websocket URL."`
	Timeout time.Duration `default:"2s" help:"Connect and reply timeout."`
	Wait    bool          `default:"true" negatable:"" help:"Wait for the proxy greeting before sending."`
	Verbose bool          `short:"v" help:"Echo client log entries to stderr."`

	Monitor   cliMonitorCmd   `cmd:"" default:"withargs" help:"Run the terminal monitor UI."`
	GUI       cliGUICmd       `cmd:"" name:"gui" help:"Open the graphical register view."`
	Compile   cliCompileCmd   `cmd:"" aliases:"c" help:"Compile and load a program."`
	Step      cliStepCmd      `cmd:"" aliases:"s" help:"Execute single cycles."`
	Run       cliRunCmd       `cmd:"" help:"Request cycles at a fixed rate."`
	Resume    cliEmptyCmd     `cmd:"" help:"Resume from a breakpoint."`
	Reset     cliEmptyCmd     `cmd:"" help:"Reset the MCU."`
	Interrupt cliInterruptCmd `cmd:"" aliases:"irq" help:"Raise an interrupt."`
	Ping      cliEmptyCmd     `cmd:"" help:"Ping the proxy."`
	Test      cliTestCmd      `cmd:"" help:"Send a diagnostic echo."`
	State     cliStateCmd     `cmd:"" help:"Print the next MCU snapshot."`
	Mem       cliMemCmd       `cmd:"" help:"Data memory commands."`
	Shell     cliEmptyCmd     `cmd:"" help:"Interactive command session."`
}

type cliEmptyCmd struct{}

type cliMonitorCmd struct {
	Asm       string `name:"asm" type:"path" help:"Assembly source sent by the c key."`
	CSource   string `name:"c-source" type:"path" help:"C source sent by the C key."`
	Frequency string `short:"f" default:"10" help:"Run mode rate in Hz (k suffix allowed)."`
	Vector    string `default:"INT0" help:"Interrupt raised by the i key (name or index)."`
}

type cliGUICmd struct {
	Frequency string `short:"f" default:"10" help:"Run mode rate in Hz (k suffix allowed)."`
	Zoom      int    `default:"1" help:"Window scale."`
}

type cliCompileCmd struct {
	Asm cliSourceCmd `cmd:"" name:"asm" help:"Compile assembly."`
	C   cliSourceCmd `cmd:"" name:"c" help:"Compile C."`
}

type cliSourceCmd struct {
	Path string `arg:"" type:"existingfile" help:"Source file."`
}

type cliStepCmd struct {
	Count int  `short:"n" default:"1" help:"Number of cycles."`
	Quiet bool `short:"q" help:"Print only the summary line."`
}

type cliRunCmd struct {
	Frequency string        `short:"f" default:"10" help:"Cycle rate in Hz (k suffix allowed)."`
	For       time.Duration `name:"for" help:"Stop after this long (default: until interrupted)."`
	Quiet     bool          `short:"q" help:"Do not print snapshots."`
}

type cliInterruptCmd struct {
	Vector string `arg:"" help:"Vector name (INT0, TIMER0_OVF_vect) or index."`
}

type cliTestCmd struct {
	Payload *string `arg:"" optional:"" help:"Payload (default: test)."`
}

type cliStateCmd struct {
	Step bool `help:"Request one cycle first."`
}

type cliMemCmd struct {
	Dump cliMemDumpCmd `cmd:"" default:"withargs" help:"Dump data memory from the next snapshot."`
}

type cliMemDumpCmd struct {
	Start   string `default:"0" help:"First address (decimal, 0xNN, $NN or a register name)."`
	Length  string `default:"-1" help:"Number of words (default: to the end)."`
	Step    bool   `help:"Request one cycle first."`
	JSON    bool   `name:"json" help:"Output JSON with address and buffer."`
	Columns *int   `short:"c" name:"columns" help:"Words per line (default: 16)."`
	NoASCII bool   `name:"noascii" help:"Hide ASCII column."`
	Symbols bool   `help:"List named registers in the range instead of a hex dump."`
}

var cliPathAliasPattern = regexp.MustCompile(`\s*\([^)]*\)`)

var cliVars = map[string]string{
	"default_url": rpc.DefaultURL,
}
