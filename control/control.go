// Package control listens for out-of-band commands on a line-delimited
// channel (normally stdin) and forwards restart requests to the frame
// source.
package control

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// restartCommand is the only recognized control token; the match is
// exact and case-sensitive on the trimmed line.
const restartCommand = "RESTART"

// Restarter is the part of the frame source the control channel drives.
type Restarter interface {
	RequestRestart()
}

type Listener struct {
	in         io.Reader
	target     Restarter
	retryDelay time.Duration
}

type Config struct {
	In     io.Reader
	Target Restarter

	// RetryDelay is the pause after a read fault before trying again.
	RetryDelay time.Duration
}

func New(cfg *Config) (*Listener, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if cfg.In == nil {
		return nil, errors.New("in is nil")
	}

	if cfg.Target == nil {
		return nil, errors.New("target is nil")
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}

	return &Listener{
		in:         cfg.In,
		target:     cfg.Target,
		retryDelay: retryDelay,
	}, nil
}

// Run consumes the control channel until it closes. End of input is a
// normal shutdown of the channel, not an error; read faults are logged
// and retried. Unrecognized lines are ignored.
func (l *Listener) Run() {
	reader := bufio.NewReader(l.in)

	for {
		line, err := reader.ReadString('\n')

		if strings.TrimSpace(line) == restartCommand {
			l.target.RequestRestart()
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}

			slog.Warn("control channel read failed", "err", err)

			time.Sleep(l.retryDelay)
		}
	}
}
