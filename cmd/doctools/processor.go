package main

import "github.com/spf13/cobra"

func newProcessorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processor",
		Short: "Processor asset commands",
	}

	cmd.AddCommand(newProcessorDownloadCmd())

	return cmd
}
