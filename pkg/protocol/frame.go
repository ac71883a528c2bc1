package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

const (
	// MaxFrameSize is the maximum allowed frame size (1 MB)
	MaxFrameSize = 1024 * 1024

	// ProtocolVersion is the current protocol version
	// v1: JSON envelopes in length-prefixed frames
	// v2: LZ4 compression (FlagCompressed) and request ids
	ProtocolVersion = 2

	// CompressionThreshold is the minimum payload size to consider compression (512 bytes)
	CompressionThreshold = 512

	// headerLen covers version, type and flags.
	headerLen = 3
)

// Frame types. The client only ever sends TypeRequest; the server answers
// with TypeResponse and delivers unsolicited chat with TypePush, so the
// client reader can route without inspecting the payload.
const (
	TypeRequest  = 0x01
	TypeResponse = 0x81
	TypePush     = 0x8D
)

// Flag constants
const (
	FlagCompressed = 0x01 // Bit 0: compression
)

var (
	ErrFrameTooLarge        = errors.New("frame exceeds maximum size (1 MB)")
	ErrInvalidFrameLength   = errors.New("invalid frame length")
	ErrDecompressionFailed  = errors.New("decompression failed")
	ErrInvalidCompressedLen = errors.New("invalid compressed payload length")
	ErrInvalidVersion       = errors.New("unsupported protocol version")
)

// Frame represents a protocol frame
// Format: [Length (4 bytes)][Version (1 byte)][Type (1 byte)][Flags (1 byte)][Payload (N bytes)]
type Frame struct {
	Version uint8  // Protocol version
	Type    uint8  // TypeRequest, TypeResponse or TypePush
	Flags   uint8  // Flags byte (compression)
	Payload []byte // JSON envelope
}

// NewFrame builds a current-version frame around payload.
func NewFrame(frameType uint8, payload []byte) *Frame {
	return &Frame{
		Version: ProtocolVersion,
		Type:    frameType,
		Payload: payload,
	}
}

// CompressPayload compresses data using LZ4 and prepends the uncompressed size.
// Format: [Uncompressed Size (4 bytes, big-endian)][LZ4 Compressed Data]
// Returns the original data if compression doesn't reduce size.
func CompressPayload(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, false
	}

	compressed := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(compressed[:4], uint32(len(data)))

	n, err := lz4.CompressBlock(data, compressed[4:], nil)
	if err != nil || n == 0 {
		// Incompressible
		return data, false
	}

	if 4+n >= len(data) {
		return data, false
	}
	return compressed[:4+n], true
}

// DecompressPayload decompresses LZ4-compressed data.
// Expects format: [Uncompressed Size (4 bytes, big-endian)][LZ4 Compressed Data]
func DecompressPayload(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrInvalidCompressedLen
	}

	uncompressedSize := binary.BigEndian.Uint32(data[:4])
	if uncompressedSize > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	decompressed := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[4:], decompressed)
	if err != nil || n != int(uncompressedSize) {
		return nil, ErrDecompressionFailed
	}
	return decompressed, nil
}

// EncodeFrame writes a frame to the writer as a single Write call,
// compressing payloads larger than CompressionThreshold if that saves space.
// Writing the frame in one call keeps message-oriented transports such as
// WebSocket at one frame per message.
func EncodeFrame(w io.Writer, f *Frame) error {
	data, err := MarshalFrame(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}

	// Flush if the writer supports it (e.g., *bufio.Writer)
	type flusher interface {
		Flush() error
	}
	if fl, ok := w.(flusher); ok {
		return fl.Flush()
	}
	return nil
}

// MarshalFrame encodes a frame to its wire bytes.
func MarshalFrame(f *Frame) ([]byte, error) {
	payload := f.Payload
	flags := f.Flags

	if len(payload) >= CompressionThreshold && flags&FlagCompressed == 0 {
		if compressed, ok := CompressPayload(payload); ok {
			payload = compressed
			flags |= FlagCompressed
		}
	}

	length := uint32(headerLen + len(payload))
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+int(length)))
	if err := WriteUint32(buf, length); err != nil {
		return nil, err
	}
	buf.WriteByte(f.Version)
	buf.WriteByte(f.Type)
	buf.WriteByte(flags)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeFrame reads exactly one frame from the reader, however the
// underlying stream happens to be chunked.
func DecodeFrame(r io.Reader) (*Frame, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length < headerLen {
		return nil, ErrInvalidFrameLength
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, unexpected(err)
	}
	if header[0] < 1 || header[0] > ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, header[0])
	}

	payload := make([]byte, length-headerLen)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, unexpected(err)
		}
	}

	flags := header[2]
	if flags&FlagCompressed != 0 && len(payload) > 0 {
		decompressed, err := DecompressPayload(payload)
		if err != nil {
			return nil, err
		}
		payload = decompressed
		flags &^= FlagCompressed
	}

	return &Frame{
		Version: header[0],
		Type:    header[1],
		Flags:   flags,
		Payload: payload,
	}, nil
}

// WriteUint32 writes a big-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32 reads a big-endian uint32. A clean EOF before the first byte is
// returned as io.EOF so callers can tell an orderly close from truncation.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// unexpected converts a clean EOF in the middle of a frame into
// io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
