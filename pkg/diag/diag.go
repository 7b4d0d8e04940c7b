// Package diag is the linker's diagnostic sink: fatal, error, warning and
// note messages with file/section/offset coordinates, colorized for a
// terminal the way the teacher colorizes debugger output, and additionally
// fanned out as structured log/slog records via slog-multi so the linker can
// be driven from CI without scraping colored text.
//
// Severities follow spec.md §7: fatal aborts the process (cmd/ layer only,
// via Sink.Fatal* which calls os.Exit); non-fatal errors increment a counter
// so the caller can exit non-zero once linking finishes; warnings and notes
// are informational only. Grounded on original_source/picc/error.py's
// error/warn/note/fatal functions.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorWarn  = color.New(color.FgYellow, color.Bold)
	colorNote  = color.New(color.FgCyan, color.Bold)
	colorFatal = color.New(color.FgRed, color.Bold)
	colorBold  = color.New(color.Bold)
)

// Sink accumulates diagnostics for one link. A single Sink is threaded by
// reference through the decode/link/relocate pipeline, replacing the
// original's module-level error counter with an explicit collaborator.
type Sink struct {
	out      io.Writer
	log      *slog.Logger
	errCount int
	seen     map[string]bool // undefined symbols already reported once
	notedDup bool            // "each undefined symbol is reported only once" shown
}

// NewSink returns a Sink writing colorized text to out. Structured records
// are fanned out via slog-multi to a JSON handler whose output is discarded
// and to any extra slog.Handlers supplied; out receives no JSON.
func NewSink(out io.Writer, extra ...slog.Handler) *Sink {
	handlers := append([]slog.Handler{slog.NewJSONHandler(io.Discard, nil)}, extra...)
	return &Sink{
		out:  out,
		log:  slog.New(slogmulti.Fanout(handlers...)),
		seen: make(map[string]bool),
	}
}

// ErrorCount is the number of non-fatal errors reported so far.
func (s *Sink) ErrorCount() int { return s.errCount }

// Error reports a non-fatal error tied to a whole file.
func (s *Sink) Error(filename, msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n", colorBold.Sprint(filename), colorError.Sprint("error:"), msg)
	s.log.Error(msg, "file", filename)
	s.errCount++
}

// ErrorAt reports a non-fatal error tied to a section offset within a file.
func (s *Sink) ErrorAt(filename, section string, offset uint32, msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n",
		colorBold.Sprintf("%s:%s+%#x", filename, section, offset), colorError.Sprint("error:"), msg)
	s.log.Error(msg, "file", filename, "section", section, "offset", offset)
	s.errCount++
}

// UndefinedSymbol reports an undefined symbol exactly once per name,
// appending the "reported only once" note the first time any undefined
// symbol is seen at all (spec.md §8, undefined-symbol de-duplication).
func (s *Sink) UndefinedSymbol(filename, section string, offset uint32, symbol string) {
	if s.seen[symbol] {
		return
	}
	s.seen[symbol] = true
	s.ErrorAt(filename, section, offset, fmt.Sprintf("undefined symbol '%s'", symbol))
	if !s.notedDup {
		s.NoteAt(filename, section, offset, "each undefined symbol is reported only once")
		s.notedDup = true
	}
}

// Warn reports a warning tied to a whole file.
func (s *Sink) Warn(filename, msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n", colorBold.Sprint(filename), colorWarn.Sprint("warning:"), msg)
	s.log.Warn(msg, "file", filename)
}

// NoteAt reports an informational note tied to a section offset.
func (s *Sink) NoteAt(filename, section string, offset uint32, msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n",
		colorBold.Sprintf("%s:%s+%#x", filename, section, offset), colorNote.Sprint("note:"), msg)
	s.log.Info(msg, "file", filename, "section", section, "offset", offset)
}

// Fatal prints a process-wide fatal error and exits. Only cmd/ code should
// call this; library packages return error instead (spec.md §7).
func (s *Sink) Fatal(msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n", colorBold.Sprint(progName()), colorFatal.Sprint("fatal:"), msg)
	s.log.Error(msg, "fatal", true)
	os.Exit(1)
}

// FatalFile prints a fatal error tied to a file and exits.
func (s *Sink) FatalFile(filename, msg string) {
	fmt.Fprintf(s.out, "%s: %s %s\n", colorBold.Sprint(filename), colorFatal.Sprint("fatal:"), msg)
	s.log.Error(msg, "file", filename, "fatal", true)
	os.Exit(1)
}

func progName() string {
	if len(os.Args) == 0 {
		return "ld18"
	}
	return os.Args[0]
}
