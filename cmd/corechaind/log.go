package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/jrick/logrotate"

	"github.com/nimbusledger/corechain/blockchain"
	"github.com/nimbusledger/corechain/chainstore"
	"github.com/nimbusledger/corechain/connpool"
	"github.com/nimbusledger/corechain/log"
)

// logWriters holds the rotating file handle so main can close it on exit.
type logWriters struct {
	rotator io.WriteCloser
}

// initLogging opens a rotating log file under logPath and wires every
// package's logger to write both there and to stderr, at the given level.
func initLogging(logPath string, level log.Level) (*logWriters, error) {
	rotator, err := logrotate.NewRotator(logPath)
	if err != nil {
		return nil, err
	}

	out := io.MultiWriter(os.Stderr, rotator)
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	root := slog.New(handler)

	wireSubsystem := func(subsystem string, use func(log.Logger)) {
		l := log.NewBackend(subsystem, root)
		l.SetLevel(level)
		use(l)
	}
	wireSubsystem("CHAN", blockchain.UseLogger)
	wireSubsystem("CHST", chainstore.UseLogger)
	wireSubsystem("CONN", connpool.UseLogger)

	return &logWriters{rotator: rotator}, nil
}

func (w *logWriters) Close() {
	if w.rotator != nil {
		_ = w.rotator.Close()
	}
}
