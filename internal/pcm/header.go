package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length of the WAV header written at the start of every stream.
	HeaderSize = 44
	// MaxContainerSize is the largest size a WAV container can declare. It is
	// also written into both size fields as the "unknown length" sentinel.
	MaxContainerSize = 0xFFFFFFFF

	formatIEEEFloat = 3
	bitsPerSample   = 32
	bytesPerSample  = bitsPerSample / 8
)

var ErrBadHeader = errors.New("not a streaming float WAV header")

// Format describes interleaved 32-bit little-endian float PCM.
type Format struct {
	Channels   int
	SampleRate int
}

func (f Format) BlockAlign() int {
	return f.Channels * bytesPerSample
}

func (f Format) ByteRate() int {
	return f.BlockAlign() * f.SampleRate
}

func (f Format) Validate() error {
	if f.Channels <= 0 || f.Channels > 0xFFFF {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	return nil
}

// Header returns the 44 byte WAV header for f.
func Header(f Format) []byte {
	h := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], MaxContainerSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], formatIEEEFloat)
	le.PutUint16(h[22:24], uint16(f.Channels))
	le.PutUint32(h[24:28], uint32(f.SampleRate))
	le.PutUint32(h[28:32], uint32(f.ByteRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], MaxContainerSize)

	return h
}

// HeaderInfo is the decoded content of a header produced by Header.
type HeaderInfo struct {
	Format
	ByteRate      int
	BlockAlign    int
	BitsPerSample int
}

// ParseHeader decodes a header produced by Header.
func ParseHeader(h []byte) (HeaderInfo, error) {
	if len(h) < HeaderSize {
		return HeaderInfo{}, fmt.Errorf("%w: %d bytes", ErrBadHeader, len(h))
	}
	le := binary.LittleEndian

	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" ||
		string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		return HeaderInfo{}, fmt.Errorf("%w: bad chunk ids", ErrBadHeader)
	}
	if le.Uint32(h[16:20]) != 16 || le.Uint16(h[20:22]) != formatIEEEFloat {
		return HeaderInfo{}, fmt.Errorf("%w: not IEEE float", ErrBadHeader)
	}

	return HeaderInfo{
		Format: Format{
			Channels:   int(le.Uint16(h[22:24])),
			SampleRate: int(le.Uint32(h[24:28])),
		},
		ByteRate:      int(le.Uint32(h[28:32])),
		BlockAlign:    int(le.Uint16(h[32:34])),
		BitsPerSample: int(le.Uint16(h[34:36])),
	}, nil
}
