package audio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bosley/soundanno/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRamp stores one second per 1000 samples, sample i holding value i.
func writeRamp(t *testing.T, n int) string {
	t.Helper()
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWav(&buf, Clip{SampleRate: 1000, Samples: samples}))

	path := filepath.Join(t.TempDir(), "ramp.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestWriteWavHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWav(&buf, Clip{SampleRate: 16000, Samples: []int16{1, 2, 3}}))

	data := buf.Bytes()
	require.Len(t, data, 44+6)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "data", string(data[36:40]))
}

func TestProbe(t *testing.T) {
	path := writeRamp(t, 2500)

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.Channels)
	assert.Equal(t, uint32(1000), info.SampleRate)
	assert.Equal(t, uint16(16), info.BitsPerSample)
	assert.Equal(t, 2500*time.Millisecond, info.Duration)
	assert.InDelta(t, 2.5, info.Seconds, 1e-9)
}

func TestProbeNotWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file at all, padding padding"), 0644))

	_, err := Probe(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadRange(t *testing.T) {
	path := writeRamp(t, 5000)

	clip, err := ReadRange(path, annotation.Range{Start: 1, End: 1.5})
	require.NoError(t, err)
	require.Len(t, clip.Samples, 500)
	assert.Equal(t, int16(1000), clip.Samples[0])
	assert.Equal(t, int16(1499), clip.Samples[499])
	assert.Equal(t, 500*time.Millisecond, clip.Duration())
}

func TestReadRangeClampsToFile(t *testing.T) {
	path := writeRamp(t, 1000)

	clip, err := ReadRange(path, annotation.Range{Start: 0.5, End: 10})
	require.NoError(t, err)
	assert.Len(t, clip.Samples, 500)
}

func TestReadRangeEmpty(t *testing.T) {
	path := writeRamp(t, 1000)

	clip, err := ReadRange(path, annotation.Range{Start: 0.8, End: 0.2})
	require.NoError(t, err)
	assert.Empty(t, clip.Samples)

	clip, err = ReadRange(path, annotation.Range{Start: 0.3, End: 0.3})
	require.NoError(t, err)
	assert.Empty(t, clip.Samples)
}

func TestReadRangeOpenEnded(t *testing.T) {
	path := writeRamp(t, 1200)

	clip, err := ReadRange(path, annotation.Range{Start: 1, End: math.Inf(1)})
	require.NoError(t, err)
	assert.Len(t, clip.Samples, 200)
}
