//go:build test

package main

import (
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/testutils"
	"github.com/srg/blecb/pkg/ble"
	"github.com/srg/blecb/pkg/config"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// PeripheralCommandsTestSuite runs the connection-based commands against the battery peripheral.
type PeripheralCommandsTestSuite struct {
	CommandTestSuite
}

func (s *PeripheralCommandsTestSuite) TestReadHex() {
	// GOAL: Verify read connects on demand and prints the value
	//
	// TEST SCENARIO: read 180F/2A19 --hex → "32" printed → link closed afterwards

	out, err := s.ExecuteCommand(rootCmd, "read", TestDeviceAddress1, "180F", "2A19", "--hex")
	s.Require().NoError(err, "read MUST succeed")
	s.Assert().Equal("32\n", out)

	s.Mock.Device.AssertCalled(s.T(), "Dial", mock.Anything, mock.Anything)
	s.Mock.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *PeripheralCommandsTestSuite) TestReadDescriptor() {
	out, err := s.ExecuteCommand(rootCmd, "read", TestDeviceAddress1, "0x180f", "2a19", "--desc", "2901")
	s.Require().NoError(err, "descriptor read MUST succeed")
	s.Assert().Equal("Battery\n", out)
}

func (s *PeripheralCommandsTestSuite) TestReadUnknownCharacteristic() {
	_, err := s.ExecuteCommand(rootCmd, "read", TestDeviceAddress1, "180F", "2A00")
	s.Require().Error(err, "missing characteristic MUST fail")
	s.Assert().Contains(FormatUserError(err), "characteristic", "message MUST name the missing resource")
	s.Assert().Contains(FormatUserError(err), "2a00")
}

func (s *PeripheralCommandsTestSuite) TestReadInvalidUUID() {
	_, err := s.ExecuteCommand(rootCmd, "read", TestDeviceAddress1, "180F", "not-a-uuid")
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "invalid UUID")
	s.Mock.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *PeripheralCommandsTestSuite) TestWriteHex() {
	out, err := s.ExecuteCommand(rootCmd, "write", TestDeviceAddress1, "180F", "2A19", "--hex", "0x01:02")
	s.Require().NoError(err, "write MUST succeed")
	s.Assert().Equal("Wrote 2 byte(s)\n", out)

	chr := s.Mock.Characteristic("180F", "2A19")
	s.Mock.Client.AssertCalled(s.T(), "WriteCharacteristic", chr, []byte{1, 2}, false)
}

func (s *PeripheralCommandsTestSuite) TestWriteWithoutResponse() {
	_, err := s.ExecuteCommand(rootCmd, "write", TestDeviceAddress1, "180F", "2A19", "hi", "--without-response")
	s.Require().NoError(err)

	chr := s.Mock.Characteristic("180F", "2A19")
	s.Require().Eventually(func() bool {
		for _, c := range s.Mock.Client.Calls {
			if c.Method == "WriteCharacteristic" && c.Arguments.Get(0) == chr {
				return c.Arguments.Bool(2)
			}
		}
		return false
	}, s.TestTimeout, 10*time.Millisecond, "write without response MUST reach the platform with noRsp set")
}

func (s *PeripheralCommandsTestSuite) TestWriteDescriptor() {
	out, err := s.ExecuteCommand(rootCmd, "write", TestDeviceAddress1, "180F", "2A19", "--desc", "2902", "--hex", "01 00")
	s.Require().NoError(err)
	s.Assert().Equal("Wrote 2 byte(s)\n", out)
	s.Mock.Client.AssertCalled(s.T(), "WriteDescriptor", mock.Anything, []byte{1, 0})
}

func (s *PeripheralCommandsTestSuite) TestWriteRejectsBadInput() {
	_, err := s.ExecuteCommand(rootCmd, "write", TestDeviceAddress1, "180F", "2A19", "--hex", "zz")
	s.Assert().ErrorContains(err, "invalid hex data")

	resetFlags(writeCmd.Flags())
	_, err = s.ExecuteCommand(rootCmd, "write", TestDeviceAddress1, "180F", "2A19", "x", "--desc", "2902", "--without-response")
	s.Assert().ErrorContains(err, "--without-response")

	s.Mock.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *PeripheralCommandsTestSuite) TestServicesTable() {
	out, err := s.ExecuteCommand(rootCmd, "services", TestDeviceAddress1)
	s.Require().NoError(err, "services MUST succeed")

	testutils.NewTextAsserter(s.T()).Assert(out, `00:00:00:00:00:01 (1 services)
Service 180f Battery Service (primary)
  Characteristic 2a19 Battery Level [read,notify]
    Descriptor 2902 Client Characteristic Configuration
    Descriptor 2901 Characteristic User Description
`)
}

func (s *PeripheralCommandsTestSuite) TestServicesJSON() {
	out, err := s.ExecuteCommand(rootCmd, "services", TestDeviceAddress1, "--format", "json", "--service", "180F")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{
			"uuid": "180f",
			"name": "Battery Service",
			"primary": true,
			"characteristics": [
				{
					"uuid": "2a19",
					"name": "Battery Level",
					"properties": "read,notify",
					"descriptors": [
						{"uuid": "2902", "name": "Client Characteristic Configuration"},
						{"uuid": "2901", "name": "Characteristic User Description"}
					]
				}
			]
		}
	]`)
}

func (s *PeripheralCommandsTestSuite) TestRSSI() {
	out, err := s.ExecuteCommand(rootCmd, "rssi", TestDeviceAddress1)
	s.Require().NoError(err)
	s.Assert().Equal("-42 dBm\n", out)
}

func (s *PeripheralCommandsTestSuite) TestNotify() {
	// GOAL: Verify notify prints values pushed by the peripheral and unsubscribes on exit
	//
	// TEST SCENARIO: notify --count 1 → peripheral pushes 0x4d → one line printed → Unsubscribe called

	handlers := make(chan blelib.NotificationHandler, 1)
	for _, c := range s.Mock.Client.ExpectedCalls {
		if c.Method == "Subscribe" {
			c.Run(func(args mock.Arguments) {
				handlers <- args.Get(2).(blelib.NotificationHandler)
			})
		}
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.ExecuteCommand(rootCmd, "notify", TestDeviceAddress1, "180F", "2A19", "--count", "1", "--duration", "5s")
		done <- result{out, err}
	}()

	handler := testutils.Await[blelib.NotificationHandler](s.T(), handlers, s.TestTimeout)
	handler([]byte{0x4d})

	r := testutils.Await[result](s.T(), done, s.TestTimeout)
	s.Require().NoError(r.err, "notify MUST end cleanly after --count values")
	s.Assert().Regexp(`^\d{2}:\d{2}:\d{2}\.\d{3} 2a19: 4d\n$`, r.out)
	s.Mock.Client.AssertCalled(s.T(), "Unsubscribe", s.Mock.Characteristic("180F", "2A19"), mock.Anything)
}

func (s *PeripheralCommandsTestSuite) TestNotifyLinkLoss() {
	// GOAL: Verify a dropped link ends notify with ErrConnectionLost
	//
	// TEST SCENARIO: notify running → link drops → command returns ErrConnectionLost

	notifying := make(chan struct{}, 1)
	orig := newCentral
	defer func() { newCentral = orig }()
	newCentral = func(cfg *config.Config, logger *logrus.Logger) (*ble.Central, error) {
		c, err := orig(cfg, logger)
		if err == nil {
			c.Subscribe(func(e ble.Event) {
				if ev, ok := e.(ble.CharacteristicNotificationStateChanged); ok && ev.Notifying {
					notifying <- struct{}{}
				}
			})
		}
		return c, err
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.ExecuteCommand(rootCmd, "notify", TestDeviceAddress1, "180F", "2A19", "--duration", "5s")
		done <- err
	}()

	testutils.Await[struct{}](s.T(), notifying, s.TestTimeout)
	s.Mock.DropLink()

	err := testutils.Await[error](s.T(), done, s.TestTimeout)
	s.Require().ErrorIs(err, ErrConnectionLost, "link loss MUST end notify with an error")
	s.Assert().Equal("the peripheral disconnected unexpectedly", FormatUserError(err))
}

func (s *PeripheralCommandsTestSuite) TestUnknownPeripheral() {
	_, err := s.ExecuteCommand(rootCmd, "rssi", "kitchen-sensor")
	s.Require().Error(err, "an identifier that is not an address MUST be rejected")
	s.Assert().Contains(err.Error(), `unknown peripheral "kitchen-sensor"`)
	s.Mock.Device.AssertNotCalled(s.T(), "Dial", mock.Anything, mock.Anything)
}

func (s *PeripheralCommandsTestSuite) TestInvalidLogLevel() {
	_, err := s.ExecuteCommand(rootCmd, "rssi", TestDeviceAddress1, "--log-level", "loud")
	s.Assert().ErrorContains(err, "invalid log level")
}

func TestPeripheralCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralCommandsTestSuite))
}

// ScanCommandTestSuite scans two advertising peripherals.
type ScanCommandTestSuite struct {
	CommandTestSuite
}

func (s *ScanCommandTestSuite) SetupTest() {
	s.WithAdvertisements().WithAdvertisements(
		testutils.NewAdvertisementBuilder().
			WithName("Battery").WithAddress(TestDeviceAddress1).WithRSSI(-40).
			WithServices("180F").WithConnectable(true).
			Build(),
		testutils.NewAdvertisementBuilder().
			WithName("Heart").WithAddress(TestDeviceAddress2).WithRSSI(-70).
			WithServices("180D").WithConnectable(false).
			Build(),
	)
	s.CommandTestSuite.SetupTest()
}

func (s *ScanCommandTestSuite) TestScanTable() {
	out, err := s.ExecuteCommand(rootCmd, "scan", "--timeout", "100ms")
	s.Require().NoError(err, "scan MUST succeed")

	testutils.NewTextAsserter(s.T()).WithOptions(testutils.WithIgnoreTrailingWhitespace(true)).Assert(out,
		`NAME     IDENTIFIER         RSSI     SERVICES
Battery  00:00:00:00:00:01  -40 dBm  180f
Heart    00:00:00:00:00:02  -70 dBm  180d
2 peripheral(s) found
`)
}

func (s *ScanCommandTestSuite) TestScanJSONWithFilter() {
	out, err := s.ExecuteCommand(rootCmd, "scan", "--timeout", "100ms", "--format", "json", "--service", "180D")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).WithOptions(testutils.WithIgnoredFields("seen")).Assert(out, `[
		{"id": "00:00:00:00:00:02", "name": "Heart", "rssi": -70, "services": ["180d"], "connectable": false}
	]`)
}

func (s *ScanCommandTestSuite) TestScanRejectsBadFormat() {
	_, err := s.ExecuteCommand(rootCmd, "scan", "--format", "xml")
	s.Assert().Error(err, "unknown format MUST be rejected")
	s.Mock.Device.AssertNotCalled(s.T(), "Scan", mock.Anything, mock.Anything, mock.Anything)
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}
