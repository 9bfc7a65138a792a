package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/rspstub/internal/protocol/checksum"
	"github.com/danmuck/rspstub/internal/protocol/command"
	"github.com/danmuck/rspstub/internal/protocol/feature"
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type featureView struct {
	Name    string `json:"name" yaml:"name"`
	Known   bool   `json:"known" yaml:"known"`
	Support string `json:"support" yaml:"support"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
}

type decodedView struct {
	Command  string        `json:"command" yaml:"command"`
	Checksum string        `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Addr     *uint64       `json:"addr,omitempty" yaml:"addr,omitempty"`
	Length   *uint64       `json:"length,omitempty" yaml:"length,omitempty"`
	Features []featureView `json:"features,omitempty" yaml:"features,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "decode <payload|$frame#hh>",
		Short: "Decode a packet payload or a full data frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := decodeArg(args[0])
			if err != nil {
				return err
			}
			return writeView(cmd.OutOrStdout(), output, view)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml|json")
	return cmd
}

// decodeArg accepts a bare payload or a framed packet; framed input must
// carry a valid checksum.
func decodeArg(arg string) (decodedView, error) {
	payload := []byte(arg)
	var view decodedView
	if strings.HasPrefix(arg, string(packet.LeadData)) {
		pkt, n, err := packet.Read(payload)
		if err != nil {
			return decodedView{}, fmt.Errorf("read frame: %w", err)
		}
		if n != len(payload) {
			return decodedView{}, fmt.Errorf("read frame: %d trailing bytes", len(payload)-n)
		}
		if !checksum.Verify(pkt.Payload, pkt.Checksum) {
			return decodedView{}, fmt.Errorf("checksum mismatch: frame says %02x, payload sums to %02x", pkt.Checksum, checksum.Compute(pkt.Payload))
		}
		payload = pkt.Payload
		view.Checksum = fmt.Sprintf("%02x", pkt.Checksum)
	}

	cmd, err := command.Decode(payload)
	if err != nil {
		return decodedView{}, err
	}
	view.Command = cmd.Name()
	if cmd.Kind == command.Query {
		switch cmd.Query.Kind {
		case command.CRC:
			addr, length := cmd.Query.Addr, cmd.Query.Length
			view.Addr, view.Length = &addr, &length
		case command.SupportedFeatures:
			view.Features = featureViews(cmd.Query.Features)
		}
	}
	return view, nil
}

func featureViews(in []feature.Supported) []featureView {
	out := make([]featureView, 0, len(in))
	for _, f := range in {
		out = append(out, featureView{
			Name:    f.Feature.Name,
			Known:   f.Feature.IsKnown(),
			Support: f.Status.Support.String(),
			Value:   f.Status.Value,
		})
	}
	return out
}

func writeView(w io.Writer, format string, view decodedView) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
