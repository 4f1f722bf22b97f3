// Package logger holds the application's leveled loggers.
package logger

import (
	"io"
	"log"
	"os"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
	Debug *log.Logger
)

// Init points every level at w. A nil writer means stdout.
func Init(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	Info = log.New(w, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	Warn = log.New(w, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	Error = log.New(w, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	Debug = log.New(w, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
}

// SetLogLevel silences debug output in production.
func SetLogLevel(env string) {
	if env == "production" {
		Debug.SetOutput(io.Discard)
	}
}

func init() {
	Init(nil)
}
