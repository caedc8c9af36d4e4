package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rssiCmd represents the rssi command
var rssiCmd = &cobra.Command{
	Use:   "rssi <peripheral>",
	Short: "Read the signal strength of a connected peripheral",
	Args:  cobra.ExactArgs(1),
	RunE:  runRSSI,
}

func runRSSI(cmd *cobra.Command, args []string) error {
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

	rssi, err := await(s.ctx, func(done func(int, error)) { p.ReadRSSI(done) })
	if err != nil {
		return fmt.Errorf("rssi read failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d dBm\n", rssi)
	return nil
}
