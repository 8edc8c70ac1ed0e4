package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const DefaultMaxEntries = 256

// Entry is a single line in the log. Consecutive identical entries are
// folded into one and counted in Repeated.
type Entry struct {
	Timestamp time.Time
	Tag       string
	Detail    string
	Repeated  int
}

func (e Entry) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("%s: %s", e.Tag, e.Detail))
	if e.Repeated > 0 {
		s.WriteString(fmt.Sprintf(" (repeat x%d)", e.Repeated+1))
	}
	s.WriteString("\n")
	return s.String()
}

type Logger struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Entry
	echo       io.Writer
	now        func() time.Time
}

func New(maxEntries int) *Logger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Logger{
		maxEntries: maxEntries,
		entries:    make([]Entry, 0),
		now:        time.Now,
	}
}

// SetEcho writes every new entry to output as it is logged. A nil output
// turns echo off.
func (l *Logger) SetEcho(output io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.echo = output
}

func (l *Logger) Log(tag, detail string) {
	if l == nil {
		return
	}
	tag = strings.ReplaceAll(tag, "\n", "")
	detail = strings.ReplaceAll(detail, "\n", "")

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	var e *Entry
	if n := len(l.entries); n > 0 && l.entries[n-1].Tag == tag && l.entries[n-1].Detail == detail {
		e = &l.entries[n-1]
		e.Repeated++
		e.Timestamp = ts
	} else {
		l.entries = append(l.entries, Entry{Timestamp: ts, Tag: tag, Detail: detail})
		e = &l.entries[len(l.entries)-1]
	}
	out := *e

	if len(l.entries) > l.maxEntries {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-l.maxEntries:]...)
	}

	if l.echo != nil {
		_, _ = io.WriteString(l.echo, out.String())
	}
}

func (l *Logger) Logf(tag, format string, args ...any) {
	l.Log(tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// Write returns false if there was nothing to write.
func (l *Logger) Write(output io.Writer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return false
	}
	for _, e := range l.entries {
		_, _ = io.WriteString(output, e.String())
	}
	return true
}

func (l *Logger) Tail(output io.Writer, number int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if number > len(l.entries) {
		number = len(l.entries)
	}
	if number < 0 {
		number = 0
	}
	for _, e := range l.entries[len(l.entries)-number:] {
		_, _ = io.WriteString(output, e.String())
	}
}

func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
