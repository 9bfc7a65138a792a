package command

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/rspstub/internal/protocol/feature"
)

var (
	ErrUnsupported       = errors.New("command: unsupported command")
	ErrUnrecognizedQuery = errors.New("command: unrecognized query")
	ErrMalformedQuery    = errors.New("command: malformed query arguments")
)

var (
	querySupported = []byte("Supported")
	queryCRC       = []byte("CRC:")
)

// single maps argument-less commands to their kind.
var single = map[byte]Kind{
	'!': EnableExtendedMode,
	'?': TargetHaltReason,
	'd': ToggleDebug,
	'g': ReadGeneralRegisters,
	'k': Kill,
	'r': Reset,
}

// Decode parses one data packet payload.
//
// Unknown commands and bad arguments to argument-less commands return
// ErrUnsupported. Query failures return ErrUnrecognizedQuery,
// ErrMalformedQuery or feature.ErrMalformedEntry.
func Decode(payload []byte) (Command, error) {
	if len(payload) == 0 {
		return Command{}, fmt.Errorf("%w: empty payload", ErrUnsupported)
	}
	lead := payload[0]
	if kind, ok := single[lead]; ok {
		// Deliberately strict: trailing bytes make the packet unsupported
		// rather than being ignored.
		if len(payload) != 1 {
			return Command{}, fmt.Errorf("%w: %q takes no arguments", ErrUnsupported, lead)
		}
		return Command{Kind: kind}, nil
	}
	switch lead {
	case 'R':
		// R XX: restart, the argument is ignored
		if len(payload) != 3 {
			return Command{}, fmt.Errorf("%w: R wants 2 argument bytes, got %d", ErrUnsupported, len(payload)-1)
		}
		return Command{Kind: Reset}, nil
	case 'q':
		q, err := decodeQuery(payload[1:])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: Query, Query: q}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnsupported, lead)
}

func decodeQuery(body []byte) (QueryArgs, error) {
	switch {
	case len(body) == 1 && body[0] == 'C':
		return QueryArgs{Kind: CurrentThread}, nil
	case bytes.HasPrefix(body, queryCRC):
		return decodeCRC(body[len(queryCRC):])
	case bytes.HasPrefix(body, querySupported):
		rest := body[len(querySupported):]
		// gdb documents a bare qSupported as a valid empty negotiation, so
		// the colon is optional.
		if len(rest) == 0 {
			return QueryArgs{Kind: SupportedFeatures, Features: []feature.Supported{}}, nil
		}
		if rest[0] != ':' {
			return QueryArgs{}, fmt.Errorf("%w: q%s", ErrUnrecognizedQuery, body)
		}
		features, err := feature.ParseList(rest[1:])
		if err != nil {
			return QueryArgs{}, err
		}
		return QueryArgs{Kind: SupportedFeatures, Features: features}, nil
	}
	return QueryArgs{}, fmt.Errorf("%w: q%s", ErrUnrecognizedQuery, body)
}

// decodeCRC parses addr,length in hex.
func decodeCRC(args []byte) (QueryArgs, error) {
	addrRaw, lengthRaw, ok := bytes.Cut(args, []byte{','})
	if !ok {
		return QueryArgs{}, fmt.Errorf("%w: qCRC wants addr,length", ErrMalformedQuery)
	}
	addr, err := parseHex(addrRaw)
	if err != nil {
		return QueryArgs{}, fmt.Errorf("%w: qCRC addr: %v", ErrMalformedQuery, err)
	}
	length, err := parseHex(lengthRaw)
	if err != nil {
		return QueryArgs{}, fmt.Errorf("%w: qCRC length: %v", ErrMalformedQuery, err)
	}
	return QueryArgs{Kind: CRC, Addr: addr, Length: length}, nil
}

func parseHex(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, errors.New("empty number")
	}
	return strconv.ParseUint(string(b), 16, 64)
}

// IsDecodeError reports whether err came from Decode rather than transport.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrUnrecognizedQuery) ||
		errors.Is(err, ErrMalformedQuery) ||
		errors.Is(err, feature.ErrMalformedEntry)
}
