package packet

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/rspstub/internal/protocol/checksum"
)

// Wire lead bytes.
const (
	LeadAck  byte = '+'
	LeadNack byte = '-'
	LeadData byte = '$'
	Trailer  byte = '#'
)

// Read errors. ErrPacketTooLarge is for callers enforcing Limits.
var (
	ErrIncomplete        = errors.New("packet: incomplete frame")
	ErrNoPacket          = errors.New("packet: no packet at buffer start")
	ErrMalformedChecksum = errors.New("packet: malformed checksum")
	ErrPacketTooLarge    = errors.New("packet: frame exceeds max packet size")
)

const unsupportedFrame = "$#00"

// Unsupported returns the empty-payload reply for commands the stub does not
// handle. Each call returns a fresh slice.
func Unsupported() []byte {
	return []byte(unsupportedFrame)
}

// Kind identifies one of the three wire forms.
type Kind uint8

const (
	Ack Kind = iota + 1
	Nack
	Data
)

func (k Kind) String() string {
	switch k {
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case Data:
		return "data"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Packet is one frame read off the wire. Checksum is the value the peer
// claimed; it has not been verified against Payload.
type Packet struct {
	Kind     Kind
	Payload  []byte
	Checksum byte
}

// Limits constrains how much unframed input a reader will hold.
type Limits struct {
	MaxPacketSize  int
	ReadBufferSize int
}

// DefaultLimits allows 16 KiB of pending frame and reads 4 KiB at a time.
func DefaultLimits() Limits {
	return Limits{
		MaxPacketSize:  16 * 1024,
		ReadBufferSize: 4 * 1024,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.MaxPacketSize <= 0 {
		l.MaxPacketSize = def.MaxPacketSize
	}
	if l.ReadBufferSize <= 0 {
		l.ReadBufferSize = def.ReadBufferSize
	}
	return l
}

// Read recognizes the frame at the start of buf and returns it with the
// number of bytes it spans.
//
// ErrIncomplete means buf holds the beginning of a frame; keep it and retry
// once more bytes arrive. ErrNoPacket means buf does not start with a lead
// byte; n is the distance to the next lead byte (or len(buf)). A data frame
// whose checksum digits are not hex returns ErrMalformedChecksum with n
// covering the whole frame.
func Read(buf []byte) (Packet, int, error) {
	if len(buf) == 0 {
		return Packet{}, 0, ErrIncomplete
	}
	switch buf[0] {
	case LeadAck:
		return Packet{Kind: Ack}, 1, nil
	case LeadNack:
		return Packet{Kind: Nack}, 1, nil
	case LeadData:
		return readData(buf)
	default:
		return Packet{}, skipToLead(buf), ErrNoPacket
	}
}

func readData(buf []byte) (Packet, int, error) {
	end := bytes.IndexByte(buf[1:], Trailer)
	if end < 0 {
		return Packet{}, 0, ErrIncomplete
	}
	end++ // index of '#' in buf
	n := end + 1 + checksum.Len
	if len(buf) < n {
		return Packet{}, 0, ErrIncomplete
	}
	sum, err := checksum.Parse(buf[end+1 : n])
	if err != nil {
		return Packet{}, n, fmt.Errorf("%w: %w", ErrMalformedChecksum, err)
	}
	payload := make([]byte, end-1)
	copy(payload, buf[1:end])
	return Packet{Kind: Data, Payload: payload, Checksum: sum}, n, nil
}

func skipToLead(buf []byte) int {
	for i, b := range buf {
		if b == LeadAck || b == LeadNack || b == LeadData {
			return i
		}
	}
	return len(buf)
}

// Encode frames payload as $payload#hh.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2+checksum.Len)
	out = append(out, LeadData)
	out = append(out, payload...)
	out = append(out, Trailer)
	return checksum.Append(out, checksum.Compute(payload))
}

// WriteData writes payload as one framed data packet.
func WriteData(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return err
	}
	return nil
}

// WriteAck writes a single '+'.
func WriteAck(w io.Writer) error {
	_, err := w.Write([]byte{LeadAck})
	return err
}

// WriteNack writes a single '-'.
func WriteNack(w io.Writer) error {
	_, err := w.Write([]byte{LeadNack})
	return err
}

// WriteUnsupported writes the $#00 reply.
func WriteUnsupported(w io.Writer) error {
	_, err := io.WriteString(w, unsupportedFrame)
	return err
}
