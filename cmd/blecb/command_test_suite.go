//go:build test

package main

import (
	"bytes"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blecb/internal/testutils"
)

// Test peripheral identifiers for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// Every command runs the real central over the mocked go-ble device.
// All cmd/blecb test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite

	noColor bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.MockBLEPeripheralSuite.SetupSuite()
	s.noColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
}

// SetupTest resets every flag so values never leak between tests.
func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		resetFlags(c.Flags())
	}
	s.MockBLEPeripheralSuite.SetupTest()
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}
