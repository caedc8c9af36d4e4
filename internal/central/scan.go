package central

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/weakref"
)

// scanSession is the single active scan. A new scan replaces it.
type scanSession struct {
	callback func(ScanEvent)
	seen     []*Peripheral
	seenIDs  map[string]struct{}
	timer    *time.Timer
	ref      *weakref.Ref[scanSession]
}

func (s *scanSession) record(p *Peripheral) {
	if _, ok := s.seenIDs[p.Identifier()]; ok {
		return
	}
	s.seenIDs[p.Identifier()] = struct{}{}
	s.seen = append(s.seen, p)
}

// Scan starts a scan session reporting to cb. A running session is stopped first.
// timeout <= 0 scans until StopScan or until the adapter leaves poweredOn.
// serviceUUIDs filters advertisements by service; empty means no filter.
func (c *Coordinator) Scan(serviceUUIDs []string, timeout time.Duration, cb func(ScanEvent)) {
	uuids := device.NormalizeUUIDs(serviceUUIDs)
	if !c.q.Async(func() {
		c.startScan(uuids, timeout, cb)
	}) {
		cb(ScanEvent{Kind: ScanStopped, Err: device.ErrClosed})
	}
}

// StopScan stops the active scan session, if any.
func (c *Coordinator) StopScan() {
	c.q.Async(func() {
		c.stopScan(nil)
	})
}

// IsScanning reports whether a scan session is active.
func (c *Coordinator) IsScanning() bool {
	var scanning bool
	c.q.Sync(func() { scanning = c.scan != nil })
	return scanning
}

func (c *Coordinator) startScan(uuids []string, timeout time.Duration, cb func(ScanEvent)) {
	c.whenReady(func(err error) {
		if err != nil {
			cb(ScanEvent{Kind: ScanStopped, Err: err})
			return
		}
		if c.scan != nil {
			c.stopScan(nil)
		}

		s := &scanSession{callback: cb, seenIDs: make(map[string]struct{})}
		c.scan = s
		c.logger.WithFields(logrus.Fields{
			"services": uuids,
			"timeout":  timeout,
		}).Info("Starting scan...")

		cb(ScanEvent{Kind: ScanStarted})
		c.central.Scan(uuids, c.opts.AllowDuplicates)

		if timeout > 0 {
			ref := weakref.Make(s)
			s.ref = ref
			s.timer = c.q.After(timeout, func() {
				if cur := ref.Value(); cur != nil && cur == c.scan {
					c.logger.Debug("Scan timeout reached")
					c.stopScan(nil)
				}
			})
		}
	})
}

// stopScan ends the active session with err as the stop reason.
func (c *Coordinator) stopScan(err error) {
	s := c.scan
	if s == nil {
		return
	}
	c.scan = nil
	if c.central.State() == device.StatePoweredOn {
		c.central.StopScan()
	}
	if s.ref != nil {
		s.ref.Release()
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	c.logger.WithFields(logrus.Fields{
		"peripherals": len(s.seen),
		"error":       err,
	}).Info("Scan stopped")
	s.callback(ScanEvent{Kind: ScanStopped, Peripherals: s.seen, Err: err})
}
