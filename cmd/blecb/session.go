package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecb/pkg/ble"
	"github.com/srg/blecb/pkg/config"
)

// newCentral creates the central every command runs against.
var newCentral = func(cfg *config.Config, logger *logrus.Logger) (*ble.Central, error) {
	return ble.NewCentral(ble.WithConfig(cfg), ble.WithLogger(logger))
}

// session bundles what a single command invocation needs.
type session struct {
	ctx     context.Context
	cfg     *config.Config
	logger  *logrus.Logger
	central *ble.Central
	stop    context.CancelFunc
}

// openSession loads the configuration, lets the command adjust it, then
// creates the central. The session context ends on Ctrl+C.
func openSession(cmd *cobra.Command, adjust func(cfg *config.Config)) (*session, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	c, err := newCentral(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE central: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	return &session{ctx: ctx, cfg: cfg, logger: logger, central: c, stop: stop}, nil
}

func (s *session) Close() {
	s.stop()
	if err := s.central.Close(); err != nil {
		s.logger.WithError(err).Debug("central close failed")
	}
}

// peripheral resolves an identifier the platform knows about, scanned or not.
func (s *session) peripheral(id string) (*ble.Peripheral, error) {
	ps := s.central.RetrievePeripherals(id)
	if len(ps) == 0 {
		return nil, fmt.Errorf("unknown peripheral %q", id)
	}
	return ps[0], nil
}

// disconnect drops the link a command opened. Failures only matter for logging.
func (s *session) disconnect(p *ble.Peripheral) {
	if p.State() == ble.LinkDisconnected {
		return
	}
	err := awaitErr(context.Background(), func(done func(error)) { p.Disconnect(done) })
	if err != nil {
		s.logger.WithError(err).WithField("peripheral", p.Identifier()).Debug("disconnect failed")
	}
}

// await blocks until a callback-based operation answers or ctx ends.
func await[T any](ctx context.Context, start func(done func(T, error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	start(func(v T, err error) { ch <- result{v, err} })

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func awaitErr(ctx context.Context, start func(done func(error))) error {
	_, err := await(ctx, func(done func(struct{}, error)) {
		start(func(err error) { done(struct{}{}, err) })
	})
	return err
}
