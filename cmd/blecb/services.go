package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blecb/internal/bledb"
	"github.com/srg/blecb/pkg/ble"
	"github.com/srg/blecb/pkg/config"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services <peripheral>",
	Short: "List the GATT services of a peripheral",
	Long: `Connect to a peripheral and list its services, characteristics and descriptors.

The peripheral is identified by the identifier printed by 'scan'.`,
	Args: cobra.ExactArgs(1),
	RunE: runServices,
}

var (
	servicesFilter []string
	servicesFormat string
)

func init() {
	servicesCmd.Flags().StringSliceVarP(&servicesFilter, "service", "s", nil, "Only discover these service UUIDs")
	servicesCmd.Flags().StringVarP(&servicesFormat, "format", "f", "", "Output format (table, json)")
}

type serviceInfo struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Primary         bool                 `json:"primary"`
	Characteristics []characteristicInfo `json:"characteristics"`
}

type characteristicInfo struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name,omitempty"`
	Properties  string           `json:"properties"`
	Descriptors []descriptorInfo `json:"descriptors"`
}

type descriptorInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

func runServices(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if servicesFormat != "" {
			cfg.OutputFormat = servicesFormat
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.peripheral(args[0])
	if err != nil {
		return err
	}
	defer s.disconnect(p)

	var filter []ble.UUIDLike
	for _, u := range servicesFilter {
		filter = append(filter, u)
	}

	services, err := await(s.ctx, func(done func([]ble.Service, error)) {
		p.DiscoverServices(filter, done)
	})
	if err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	infos := make([]serviceInfo, 0, len(services))
	for _, svc := range services {
		info := serviceInfo{
			UUID:            svc.UUID(),
			Name:            bledb.LookupService(svc.UUID()),
			Primary:         svc.IsPrimary(),
			Characteristics: []characteristicInfo{},
		}

		chars, err := await(s.ctx, func(done func([]ble.Characteristic, error)) {
			p.DiscoverCharacteristics(nil, svc.UUID(), done)
		})
		if err != nil {
			return fmt.Errorf("characteristic discovery for %s failed: %w", svc.UUID(), err)
		}

		for _, chr := range chars {
			descs, err := await(s.ctx, func(done func([]ble.Descriptor, error)) {
				p.DiscoverDescriptors(svc.UUID(), chr.UUID(), done)
			})
			if err != nil {
				return fmt.Errorf("descriptor discovery for %s failed: %w", chr.UUID(), err)
			}

			ci := characteristicInfo{
				UUID:        chr.UUID(),
				Name:        bledb.LookupCharacteristic(chr.UUID()),
				Properties:  chr.Properties().String(),
				Descriptors: []descriptorInfo{},
			}
			for _, d := range descs {
				ci.Descriptors = append(ci.Descriptors, descriptorInfo{UUID: d.UUID(), Name: bledb.LookupDescriptor(d.UUID())})
			}
			info.Characteristics = append(info.Characteristics, ci)
		}
		infos = append(infos, info)
	}

	out := cmd.OutOrStdout()
	if s.cfg.OutputFormat == "json" {
		return writeJSON(out, infos)
	}
	displayServices(out, p, infos)
	return nil
}

func displayServices(out io.Writer, p *ble.Peripheral, services []serviceInfo) {
	title := color.New(color.Bold)
	svcColor := color.New(color.FgCyan)

	name := p.Name()
	if name == "" {
		name = p.Identifier()
	}
	title.Fprintf(out, "%s (%d services)\n", name, len(services))

	for _, svc := range services {
		kind := "secondary"
		if svc.Primary {
			kind = "primary"
		}
		svcColor.Fprintf(out, "Service %s (%s)\n", withName(svc.UUID, svc.Name), kind)
		for _, chr := range svc.Characteristics {
			fmt.Fprintf(out, "  Characteristic %s [%s]\n", withName(chr.UUID, chr.Name), chr.Properties)
			for _, d := range chr.Descriptors {
				fmt.Fprintf(out, "    Descriptor %s\n", withName(d.UUID, d.Name))
			}
		}
	}
}

func withName(uuid, name string) string {
	if name == "" {
		return uuid
	}
	return uuid + " " + name
}
