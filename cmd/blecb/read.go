package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <peripheral> <service> <characteristic>",
	Short: "Read a characteristic or descriptor value",
	Long: `Connect to a peripheral and read a characteristic value.

UUIDs may be given in 16-bit ("2A19", "0x2a19") or 128-bit form.
With --desc the descriptor of that characteristic is read instead.`,
	Example: `  blecb read AA:BB:CC:DD:EE:FF 180F 2A19 --hex
  blecb read AA:BB:CC:DD:EE:FF 180F 2A19 --desc 2901`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readDescriptor string
	readHex        bool
)

func init() {
	readCmd.Flags().StringVarP(&readDescriptor, "desc", "d", "", "Read this descriptor of the characteristic")
	readCmd.Flags().BoolVarP(&readHex, "hex", "x", false, "Print the value as hex")
}

func runRead(cmd *cobra.Command, args []string) error {
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

	service, characteristic := args[1], args[2]
	value, err := await(s.ctx, func(done func([]byte, error)) {
		if readDescriptor != "" {
			p.ReadDescriptorValue(service, characteristic, readDescriptor, done)
			return
		}
		p.ReadValue(service, characteristic, done)
	})
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if readHex {
		fmt.Fprintln(out, hex.EncodeToString(value))
		return nil
	}
	fmt.Fprintln(out, string(value))
	return nil
}
