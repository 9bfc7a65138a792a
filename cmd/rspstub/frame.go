package main

import (
	"fmt"

	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/spf13/cobra"
)

func newFrameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame <payload>",
		Short: "Frame a payload as $payload#hh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), string(packet.Encode([]byte(args[0]))))
			return err
		},
	}
}
