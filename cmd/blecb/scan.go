package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blecb/pkg/ble"
	"github.com/srg/blecb/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE peripherals",
	Long: `Scan for and display Bluetooth Low Energy peripherals in the vicinity.

Peripherals are listed in the order they were first seen with their name,
identifier, last RSSI and advertised services. Ctrl+C ends the scan early
and still prints what was found.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanTimeout         time.Duration
	scanFormat          string
	scanServices        []string
	scanAllowDuplicates bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "service", "s", nil, "Only report peripherals advertising these service UUIDs")
	scanCmd.Flags().BoolVar(&scanAllowDuplicates, "allow-duplicates", false, "Report every advertisement, not only the first per peripheral")
}

// scanEntry is one discovered peripheral.
type scanEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	RSSI        int      `json:"rssi"`
	Services    []string `json:"services"`
	Connectable bool     `json:"connectable"`
	Seen        int      `json:"seen"`
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if scanTimeout > 0 {
			cfg.ScanTimeout = scanTimeout
		}
		if scanFormat != "" {
			cfg.OutputFormat = scanFormat
		}
		if cmd.Flags().Changed("allow-duplicates") {
			cfg.AllowDuplicates = scanAllowDuplicates
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	filter := make([]ble.UUIDLike, 0, len(scanServices))
	for _, u := range scanServices {
		filter = append(filter, u)
	}
	if len(filter) == 0 {
		filter = nil
	}

	entries := orderedmap.New[string, *scanEntry]()
	done := make(chan error, 1)

	// The callback runs on the dispatch goroutine; entries is read only after done.
	s.central.Scan(filter, s.cfg.ScanTimeout, func(e ble.ScanEvent) {
		switch e.Kind {
		case ble.ScanStarted:
			s.logger.WithField("timeout", s.cfg.ScanTimeout).Info("Scan started")
		case ble.ScanResult:
			recordScanResult(entries, e)
		case ble.ScanStopped:
			done <- e.Err
		}
	})

	select {
	case err = <-done:
	case <-s.ctx.Done():
		s.central.StopScan()
		select {
		case err = <-done:
		case <-time.After(time.Second):
			// the scan never started, nothing was collected
		}
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	list := make([]*scanEntry, 0, entries.Len())
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}

	out := cmd.OutOrStdout()
	if s.cfg.OutputFormat == "json" {
		return writeJSON(out, list)
	}
	return displayScanTable(out, list)
}

func recordScanResult(entries *orderedmap.OrderedMap[string, *scanEntry], e ble.ScanEvent) {
	id := e.Peripheral.Identifier()
	entry, ok := entries.Get(id)
	if !ok {
		entry = &scanEntry{ID: id, Services: []string{}}
		entries.Set(id, entry)
	}
	entry.Seen++
	entry.RSSI = e.RSSI
	if name := e.Peripheral.Name(); name != "" {
		entry.Name = name
	}
	if adv := e.Advertisement; adv != nil {
		if adv.LocalName() != "" {
			entry.Name = adv.LocalName()
		}
		entry.Connectable = adv.Connectable()
		for _, svc := range adv.Services() {
			if !slices.Contains(entry.Services, svc) {
				entry.Services = append(entry.Services, svc)
			}
		}
	}
}

func displayScanTable(out io.Writer, entries []*scanEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No peripherals discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIDENTIFIER\tRSSI\tSERVICES")

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, e.ID, e.RSSI, services)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	color.New(color.Faint).Fprintf(out, "%d peripheral(s) found\n", len(entries))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

