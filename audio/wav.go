package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/youpy/go-wav"
)

const (
	bitsPerSample = 16 // clips are always written as int16
	readChunk     = 4096
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// Info describes a stored WAV file.
type Info struct {
	Channels      uint16        `json:"channels"`
	SampleRate    uint32        `json:"sampleRate"`
	BitsPerSample uint16        `json:"bitsPerSample"`
	Duration      time.Duration `json:"-"`
	Seconds       float64       `json:"seconds"`
}

// Clip is a mono run of samples cut from a file.
type Clip struct {
	SampleRate uint32
	Samples    []int16
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	duration, err := reader.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read duration: %w", err)
	}

	return Info{
		Channels:      format.NumChannels,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
		Duration:      duration,
		Seconds:       duration.Seconds(),
	}, nil
}

// ReadRange decodes the samples between r.Start and r.End seconds, mixed
// down to mono. The range is clamped to the file; an empty or inverted
// range yields an empty clip.
func ReadRange(path string, r annotation.Range) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		return Clip{}, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, format.AudioFormat)
	}
	if format.NumChannels == 0 || format.NumChannels > 2 {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, format.NumChannels)
	}

	first := secondsToFrame(r.Start, format.SampleRate)
	last := secondsToFrame(r.End, format.SampleRate)

	clip := Clip{SampleRate: format.SampleRate, Samples: make([]int16, 0)}
	if last <= first {
		return clip, nil
	}

	var pos uint64
	for pos < last {
		samples, err := reader.ReadSamples(readChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Clip{}, fmt.Errorf("failed to read samples: %w", err)
		}
		for _, s := range samples {
			if pos >= first && pos < last {
				clip.Samples = append(clip.Samples, mixDown(reader, s, format))
			}
			pos++
		}
	}

	return clip, nil
}

func secondsToFrame(sec float64, rate uint32) uint64 {
	if !(sec > 0) {
		return 0
	}
	frame := sec * float64(rate)
	if frame >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(frame)
}

func mixDown(reader *wav.Reader, s wav.Sample, format *wav.WavFormat) int16 {
	var sum int
	for ch := uint(0); ch < uint(format.NumChannels); ch++ {
		sum += toInt16(reader.IntValue(s, ch), format.BitsPerSample)
	}
	return int16(sum / int(format.NumChannels))
}

func toInt16(v int, bits uint16) int {
	switch {
	case bits == 8:
		return (v - 128) << 8
	case bits > 16:
		return v >> (bits - 16)
	default:
		return v
	}
}

func WriteWavHeader(w io.Writer, sampleRate, dataSize uint32) error {
	const channels = 1
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * channels * bitsPerSample / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// WriteWav encodes clip as a mono 16-bit PCM WAV stream.
func WriteWav(w io.Writer, clip Clip) error {
	dataSize := uint32(len(clip.Samples) * bitsPerSample / 8)
	if err := WriteWavHeader(w, clip.SampleRate, dataSize); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, clip.Samples); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}
