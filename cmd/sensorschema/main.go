package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bc-dunia/sensorschema/internal/config"
	"github.com/bc-dunia/sensorschema/internal/events"
)

func main() {
	// Replaced once flags are parsed; covers failures before that point.
	events.SetGlobalEventLogger(events.NewEventLogger(events.DefaultConfig()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := MakeRootCommand().ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err))
}

// exitCode logs err and maps it to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return config.ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	events.GetGlobalEventLogger().LogFatal(err)
	return config.ExitFatal
}
