// Package logger is the optional logging sink of a container. The
// core works with an inactive logger installed; the shells switch it
// on from a flag.
package logger

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	info    *log.Logger
	warning *log.Logger
	error_  *log.Logger
	active  bool
}

// New returns a logger writing to stderr when active.
func New(active bool) *Logger {
	return NewWithWriter(active, os.Stderr)
}

// NewWithWriter returns a logger writing to w when active.
func NewWithWriter(active bool, w io.Writer) *Logger {
	if !active {
		return &Logger{}
	}

	return &Logger{
		info:    log.New(w, "INFO: ", log.Ldate|log.Ltime|log.Lmsgprefix),
		warning: log.New(w, "WARNING: ", log.Ldate|log.Ltime|log.Lmsgprefix),
		error_:  log.New(w, "ERROR: ", log.Ldate|log.Ltime|log.Lmsgprefix),
		active:  true,
	}
}

func (logger *Logger) Info(msg string) {
	if logger.active {
		logger.info.Println(msg)
	}
}

func (logger *Logger) Warning(msg string) {
	if logger.active {
		logger.warning.Println(msg)
	}
}

func (logger *Logger) Error(msg any) {
	if logger.active {
		logger.error_.Println(msg)
	}
}
