package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/audio/portaudio"
)

// Overridden in tests.
var listDevices = portaudio.Devices

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	Long: `List the output devices PortAudio can play on. Narration always plays on
the default device (marked *). Requires a binary built with -tags portaudio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := listDevices()
		if err != nil {
			return err
		}
		if structured() {
			return output(cmd, devices)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEFAULT\tINDEX\tNAME\tCHANNELS\tRATE")
		for _, d := range devices {
			def := ""
			if d.IsDefaultOutput {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%.0f\n", def, d.Index, d.Name, d.MaxOutputChannels, d.DefaultSampleRate)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
