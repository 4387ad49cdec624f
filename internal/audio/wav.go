package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the canonical PCM WAV header this service
// understands: RIFF descriptor, fmt chunk, and the start of the data chunk.
const HeaderSize = 44

// WAVHeader represents the header structure of a canonical PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Format describes the audio format derived from a stream's first chunk.
// Template holds the original 44 header bytes so per-chunk WAV buffers can
// reuse the stream's format fields unmodified.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	ByteRate      int
	Template      [HeaderSize]byte
}

// ParseHeader parses the WAV header from the first chunk of a stream and
// derives the fields needed for timestamp arithmetic. It fails when the
// buffer is shorter than the header or a required field is unreadable; such
// a failure aborts the owning session.
func ParseHeader(data []byte) (*Format, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	buf := bytes.NewReader(data[:HeaderSize])
	var header WAVHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	// A non-canonical header (fmt extension, LIST/INFO chunk before data)
	// would put metadata where PCM is expected and skew all offset
	// arithmetic, so anything but an immediate data chunk is rejected.
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	if header.NumChannels == 0 {
		return nil, fmt.Errorf("invalid channel count: 0")
	}

	if header.BitsPerSample == 0 {
		return nil, fmt.Errorf("invalid bit depth: 0")
	}

	format := &Format{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
		ByteRate:      int(header.SampleRate) * int(header.NumChannels) * int(header.BitsPerSample) / 8,
	}
	copy(format.Template[:], data[:HeaderSize])

	return format, nil
}

// BuildChunkWAV produces a standalone WAV buffer for a PCM payload by
// reusing the stream's header template and patching only the two size
// fields, so each chunk can be fed to the recognition engine as an
// independent, valid file.
func BuildChunkWAV(template [HeaderSize]byte, pcm []byte) []byte {
	out := make([]byte, HeaderSize+len(pcm))
	copy(out, template[:])
	copy(out[HeaderSize:], pcm)

	// RIFF chunk size = file size - 8; data chunk size = payload size.
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))

	return out
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)    // Mono
	bitsPerSample := uint16(16) // 16-bit PCM
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// GetWAVDuration calculates the duration of a WAV buffer in seconds
func GetWAVDuration(data []byte) (float64, error) {
	format, err := ParseHeader(data)
	if err != nil {
		return 0, err
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])

	return float64(dataSize) / float64(format.ByteRate), nil
}
