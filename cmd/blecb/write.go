package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <peripheral> <service> <characteristic> <data>",
	Short: "Write a characteristic or descriptor value",
	Long: `Connect to a peripheral and write a characteristic value.

Data is sent as text unless --hex is given, in which case spaces, colons,
dashes and 0x prefixes are ignored ("01 02", "01:02", "0x0102").`,
	Example: `  blecb write AA:BB:CC:DD:EE:FF 180F 2A19 --hex 32
  blecb write AA:BB:CC:DD:EE:FF 180F 2A19 --desc 2902 --hex 0100`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeDescriptor      string
	writeHex             bool
	writeWithoutResponse bool
)

func init() {
	writeCmd.Flags().StringVarP(&writeDescriptor, "desc", "d", "", "Write this descriptor of the characteristic")
	writeCmd.Flags().BoolVarP(&writeHex, "hex", "x", false, "Data is hex encoded")
	writeCmd.Flags().BoolVar(&writeWithoutResponse, "without-response", false, "Write without waiting for an acknowledgement")
}

func runWrite(cmd *cobra.Command, args []string) error {
	data, err := parseWriteData(args[3])
	if err != nil {
		return err
	}
	if writeDescriptor != "" && writeWithoutResponse {
		return fmt.Errorf("--without-response cannot be used with --desc")
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

	service, characteristic := args[1], args[2]
	err = awaitErr(s.ctx, func(done func(error)) {
		if writeDescriptor != "" {
			p.WriteDescriptorValue(service, characteristic, writeDescriptor, data, done)
			return
		}
		p.WriteValue(service, characteristic, data, !writeWithoutResponse, done)
	})
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Wrote %d byte(s)\n", len(data))
	return nil
}

func parseWriteData(dataStr string) ([]byte, error) {
	if writeHex {
		// Remove spaces and common separators
		cleaned := strings.ReplaceAll(dataStr, " ", "")
		cleaned = strings.ReplaceAll(cleaned, ":", "")
		cleaned = strings.ReplaceAll(cleaned, "-", "")
		cleaned = strings.ReplaceAll(cleaned, "0x", "")

		data, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return data, nil
	}

	return []byte(dataStr), nil
}
