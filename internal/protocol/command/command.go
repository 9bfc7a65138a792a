// Package command decodes RSP data packet payloads into typed commands.
//
// Reference: https://sourceware.org/gdb/onlinedocs/gdb/Packets.html
package command

import (
	"fmt"

	"github.com/danmuck/rspstub/internal/protocol/feature"
)

// Kind identifies a decoded command.
type Kind uint8

const (
	// EnableExtendedMode is '!'.
	EnableExtendedMode Kind = iota + 1
	// TargetHaltReason is '?'.
	TargetHaltReason
	// ToggleDebug is 'd'.
	ToggleDebug
	// ReadGeneralRegisters is 'g'.
	ReadGeneralRegisters
	// Kill is 'k'.
	Kill
	// Reset is 'r' or 'R' with a two byte argument.
	Reset
	// Query is the 'q' family; see Command.Query.
	Query
)

var kindNames = map[Kind]string{
	EnableExtendedMode:   "enable_extended_mode",
	TargetHaltReason:     "target_halt_reason",
	ToggleDebug:          "toggle_debug",
	ReadGeneralRegisters: "read_general_registers",
	Kill:                 "kill",
	Reset:                "reset",
	Query:                "query",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// QueryKind identifies a decoded 'q' query.
type QueryKind uint8

const (
	// CurrentThread is qC.
	CurrentThread QueryKind = iota + 1
	// CRC is qCRC:addr,length.
	CRC
	// SupportedFeatures is qSupported[:features].
	SupportedFeatures
)

func (k QueryKind) String() string {
	switch k {
	case CurrentThread:
		return "current_thread"
	case CRC:
		return "crc"
	case SupportedFeatures:
		return "supported_features"
	default:
		return fmt.Sprintf("query(%d)", uint8(k))
	}
}

// QueryArgs carries the decoded arguments of a query. Addr and Length are
// set for CRC; Features, in the order the peer sent them, for
// SupportedFeatures.
type QueryArgs struct {
	Kind     QueryKind
	Addr     uint64
	Length   uint64
	Features []feature.Supported
}

// Command is one decoded request. Query is only meaningful when Kind is Query.
type Command struct {
	Kind  Kind
	Query QueryArgs
}

// Name is a stable label for logs and metrics, e.g. "kill" or "query.crc".
func (c Command) Name() string {
	if c.Kind == Query {
		return c.Kind.String() + "." + c.Query.Kind.String()
	}
	return c.Kind.String()
}

func (c Command) String() string {
	switch {
	case c.Kind != Query:
		return c.Name()
	case c.Query.Kind == CRC:
		return fmt.Sprintf("%s addr=%#x length=%#x", c.Name(), c.Query.Addr, c.Query.Length)
	case c.Query.Kind == SupportedFeatures:
		return fmt.Sprintf("%s features=%d", c.Name(), len(c.Query.Features))
	default:
		return c.Name()
	}
}
