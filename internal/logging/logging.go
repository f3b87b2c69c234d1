package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// New creates the CLI logger writing to w. Verbose output enables debug
// messages, including the request/response trace.
func New(w io.Writer, verbose bool) *log.Logger {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: verbose,
		Prefix:          "cx",
	})
}
