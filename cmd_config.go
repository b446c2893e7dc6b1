package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(
		newConfigDumpCmd(),
		newConfigPresetsCmd(),
	)
	return cmd
}

func newConfigDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration (defaults plus --config) as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.json {
				return a.print(a.cfg, nil)
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			_, err = a.out.Write(data)
			return err
		},
	}
}

func newConfigPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List configured presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.print(a.cfg.Presets, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCATEGORY\tSPECIES\tDAYS\tTEMP\tHUMIDITY\tWATER\tDESCRIPTION")
				for _, p := range a.cfg.Presets {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%.0f\t%.2f\t%s\n",
						p.Name, p.Category, p.Species, p.Days, p.Temperature, p.Humidity, p.WaterAvailability, p.Description)
				}
				tw.Flush()
			})
		},
	}
}
