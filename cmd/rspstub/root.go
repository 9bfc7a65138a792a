package main

import (
	"github.com/danmuck/rspstub/internal/server"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rspstub",
		Short:         "GDB remote serial protocol stub",
		Long:          "rspstub answers the GDB remote serial protocol handshake on behalf of a simulated target.",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newDecodeCmd(), newFrameCmd(), newConfigCmd())
	return root
}
