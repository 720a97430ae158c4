package logger

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// Init replaces the package-level phuslu logger. Debug forces the debug level.
func Init(level string, debug bool) {
	lvl := log.ParseLevel(level)
	if debug {
		lvl = log.DebugLevel
	}
	log.DefaultLogger = New(lvl, os.Stderr)
}

// New builds a logger that writes colored console output when w is a
// terminal and JSON lines otherwise.
func New(level log.Level, w io.Writer) log.Logger {
	var writer log.Writer = &log.IOWriter{Writer: w}
	if f, ok := w.(*os.File); ok && log.IsTerminal(f.Fd()) {
		writer = &log.ConsoleWriter{
			Writer:      f,
			ColorOutput: true,
			QuoteString: true,
		}
	}
	return log.Logger{
		Level:      level,
		TimeFormat: "15:04:05",
		Writer:     writer,
	}
}
