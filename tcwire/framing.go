package tcwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-errors/errors"
)

// MaxFrameLength is the largest JSON payload, in bytes, this protocol will
// accept. A peer that sends a longer frame is in violation of the protocol
// and its connection is closed.
const MaxFrameLength = 16 * 1024 * 1024 // 16 MiB

// Magic identifies which network a frame belongs to. Mainnet and testnet use
// distinct values; a mismatched magic closes the connection without a
// response.
type Magic [4]byte

var (
	// MainNetMagic is the 4-byte magic prefix for every mainnet frame.
	MainNetMagic = Magic{0xc0, 0x1d, 0x7e, 0x4d}

	// TestNetMagic is the 4-byte magic prefix for every testnet frame.
	TestNetMagic = Magic{0x7e, 0x57, 0x7e, 0x4d}
)

// ErrBadMagic is returned when a frame's magic does not match the expected
// network magic.
var ErrBadMagic = errors.New("tcwire: magic mismatch")

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameLength.
var ErrFrameTooLarge = errors.New("tcwire: frame exceeds maximum length")

// WriteFrame writes a [4-byte magic][4-byte big-endian length][payload]
// frame to w. It is the caller's responsibility to serialize concurrent
// writes to the same connection; peer.Peer does so with its write mutex.
func WriteFrame(w io.Writer, magic Magic, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return errors.Wrap(ErrFrameTooLarge, 0)
	}

	header := make([]byte, 8)
	copy(header[:4], magic[:])
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}

	return nil
}

// ReadFrame reads one frame from r, validating that its magic matches
// wantMagic and that its declared length respects MaxFrameLength. The
// returned payload is the raw JSON envelope, not yet decoded.
func ReadFrame(r io.Reader, wantMagic Magic) ([]byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	var gotMagic Magic
	copy(gotMagic[:], header[:4])
	if gotMagic != wantMagic {
		return nil, errors.Wrap(ErrBadMagic, 0)
	}

	length := binary.BigEndian.Uint32(header[4:])
	if length > MaxFrameLength {
		return nil, errors.Wrap(ErrFrameTooLarge, 0)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}
