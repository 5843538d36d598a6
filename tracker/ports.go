package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/goppg/pkg/sensor"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := sensor.Ports()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.Description != "" {
					fmt.Fprintf(out, "%s\t%s\n", p.Name, p.Description)
				} else {
					fmt.Fprintln(out, p.Name)
				}
			}
			return nil
		},
	}
}
