package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blecb/pkg/ble"
)

// notifyCmd represents the notify command
var notifyCmd = &cobra.Command{
	Use:   "notify <peripheral> <service> <characteristic>",
	Short: "Print characteristic notifications",
	Long: `Connect to a peripheral, enable notifications on a characteristic and
print every value it sends, one hex line per value.

Runs until Ctrl+C, --duration elapses or --count values arrived. Notifications
are disabled again before exiting.`,
	Args: cobra.ExactArgs(3),
	RunE: runNotify,
}

var (
	notifyDuration time.Duration
	notifyCount    int
)

func init() {
	notifyCmd.Flags().DurationVarP(&notifyDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	notifyCmd.Flags().IntVarP(&notifyCount, "count", "n", 0, "Stop after this many values (0 for no limit)")
}

func runNotify(cmd *cobra.Command, args []string) error {
	svcUUID, err := ble.CanonicalUUID(args[1])
	if err != nil {
		return err
	}
	chrUUID, err := ble.CanonicalUUID(args[2])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.peripheral(args[0])
	if err != nil {
		return err
	}
	defer s.disconnect(p)

	// Subscribe before enabling so no early value is missed
	events, cancel := s.central.Events()
	defer cancel()

	if _, err := await(s.ctx, func(done func(bool, error)) {
		p.SetNotifyValue(true, svcUUID, chrUUID, done)
	}); err != nil {
		return fmt.Errorf("enable notifications failed: %w", err)
	}
	defer func() {
		if p.State() != ble.LinkConnected {
			return
		}
		ctx, stop := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer stop()
		if _, err := await(ctx, func(done func(bool, error)) {
			p.SetNotifyValue(false, svcUUID, chrUUID, done)
		}); err != nil {
			s.logger.WithError(err).Debug("disable notifications failed")
		}
	}()

	ctx := s.ctx
	if notifyDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, notifyDuration)
		defer stop()
	}

	out := cmd.OutOrStdout()
	stamp := color.New(color.Faint)
	received := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("values", received).Info("Notification stream ended")
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := e.(type) {
			case ble.CharacteristicValueChanged:
				if ev.Peripheral.Identifier() != p.Identifier() ||
					ev.Characteristic.UUID() != chrUUID || ev.Characteristic.Service().UUID() != svcUUID {
					continue
				}
				if ev.Err != nil {
					s.logger.WithError(ev.Err).Warn("notification carried an error")
					continue
				}
				stamp.Fprintf(out, "%s ", time.Now().Format("15:04:05.000"))
				fmt.Fprintf(out, "%s: %s\n", chrUUID, hex.EncodeToString(ev.Value))
				received++
				if notifyCount > 0 && received >= notifyCount {
					return nil
				}
			case ble.PeripheralDisconnected:
				if ev.Peripheral.Identifier() == p.Identifier() {
					return fmt.Errorf("%w: %v", ErrConnectionLost, ev.Err)
				}
			}
		}
	}
}
