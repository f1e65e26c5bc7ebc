package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// Packet types
	PacketTypeOpen  = 0x01
	PacketTypeAudio = 0x02
	PacketTypeClose = 0x03

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	OpenPayloadSize        = 36 // 4 + 32 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)
	MaxPacketSize          = 65535

	// Field sizes in the open payload
	SampleRateSize = 4
	LabelSize      = 32
)

// Header represents the 8-byte TLV packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Flags:1]
type Header struct {
	PacketType uint8  // 0x01=Open, 0x02=Audio, 0x03=Close
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Unique stream identifier
	Flags      uint8  // Reserved, must be zero
}

// OpenPayload represents the 36-byte stream open payload
// Layout: [SampleRate:4][Label:32]
type OpenPayload struct {
	SampleRate uint32          // Zero selects the server default
	Label      [LabelSize]byte // Null-terminated string (32 bytes)
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32 // Packet sequence number
	AudioData []byte // Little-endian PCM16 (variable length)
}

// ParsedPacket represents a fully parsed TLV packet
type ParsedPacket struct {
	Header *Header
	Open   *OpenPayload  // Only set for open packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte TLV packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Flags:      data[7],
	}

	return header, nil
}

// ParseOpenPayload parses the 36-byte open packet payload
func ParseOpenPayload(data []byte) (*OpenPayload, error) {
	if len(data) < OpenPayloadSize {
		return nil, fmt.Errorf("open payload too short: expected %d bytes, got %d",
			OpenPayloadSize, len(data))
	}

	payload := &OpenPayload{
		SampleRate: binary.BigEndian.Uint32(data[0:SampleRateSize]),
	}
	copy(payload.Label[:], data[SampleRateSize:SampleRateSize+LabelSize])

	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	// Copy audio data so the receive buffer can be reused
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete TLV packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeOpen:
		payload, err := ParseOpenPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse open payload: %w", err)
		}
		packet.Open = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeClose:
		// No payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Flags != 0 {
		return fmt.Errorf("reserved flags must be zero, got 0x%02x", header.Flags)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeOpen:
		if payloadSize != OpenPayloadSize {
			return fmt.Errorf("open packet payload size mismatch: expected %d, got %d",
				OpenPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
	case PacketTypeClose:
		if payloadSize != 0 {
			return fmt.Errorf("close packet must have no payload, got %d bytes", payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeOpen || ptype == PacketTypeAudio || ptype == PacketTypeClose
}

// EncodeOpen builds an open packet announcing a stream
func EncodeOpen(streamID uint32, sampleRate uint32, label string) ([]byte, error) {
	if len(label) > LabelSize {
		return nil, fmt.Errorf("label too long: maximum %d bytes, got %d", LabelSize, len(label))
	}

	packet := make([]byte, HeaderSize+OpenPayloadSize)
	putHeader(packet, PacketTypeOpen, streamID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sampleRate)
	copy(packet[HeaderSize+SampleRateSize:], label)

	return packet, nil
}

// EncodeAudio builds an audio packet carrying pcm with the given sequence number
func EncodeAudio(streamID uint32, sequence uint32, pcm []byte) ([]byte, error) {
	size := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("audio packet too large: maximum %d bytes, got %d", MaxPacketSize, size)
	}

	packet := make([]byte, size)
	putHeader(packet, PacketTypeAudio, streamID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], pcm)

	return packet, nil
}

// EncodeClose builds a close packet ending a stream
func EncodeClose(streamID uint32) []byte {
	packet := make([]byte, HeaderSize)
	putHeader(packet, PacketTypeClose, streamID)
	return packet
}

func putHeader(packet []byte, packetType uint8, streamID uint32) {
	packet[0] = packetType
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], streamID)
	packet[7] = 0
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetLabel extracts the stream label as a string
func (o *OpenPayload) GetLabel() string {
	return ExtractString(o.Label[:])
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeOpen:
		packetType = "Open"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeClose:
		packetType = "Close"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Flags:0x%02x}",
		packetType, h.PacketLen, h.StreamID, h.Flags)
}

// String returns a human-readable representation of the open payload
func (o *OpenPayload) String() string {
	return fmt.Sprintf("OpenPayload{SampleRate:%d, Label:%q}", o.SampleRate, o.GetLabel())
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
