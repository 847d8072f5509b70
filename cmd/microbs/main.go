package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var (
	version   = "0.0.0-dev"
	commit    = ""
	buildDate = ""
)

var logLevels = map[string]zerolog.Level{
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
}

// Setup the logger. Plain output shows only the message; verbose output adds
// the timestamp and level.
func setupLogger(level string, verbose, noColor bool) error {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return fmt.Errorf("--log-level must be one of: debug, info, warn, error")
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		noColor = true
	}
	if noColor {
		color.NoColor = true
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: noColor}
	if !verbose {
		w.PartsExclude = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName}
	}
	log.Logger = log.Output(w)
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Main entry point
func main() {
	_ = setupLogger("info", false, false)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
