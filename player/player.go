package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/soundanno/annotation"
	"github.com/bosley/soundanno/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// DefaultDevice selects the host's default output device.
const DefaultDevice = -1

// cursor feeds a clip to the output callback and signals once it runs out.
type cursor struct {
	mu      sync.Mutex
	samples []int16
	pos     int
	done    chan struct{}
	once    sync.Once
}

func newCursor(samples []int16) *cursor {
	return &cursor{samples: samples, done: make(chan struct{})}
}

func (c *cursor) fill(out []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(out, c.samples[c.pos:])
	c.pos += n
	// Fill remaining buffer with silence if needed
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	if c.pos >= len(c.samples) {
		c.once.Do(func() { close(c.done) })
	}
}

// Play plays r of the WAV file at path and blocks until the range has
// been played or ctx is cancelled.
func Play(ctx context.Context, path string, r annotation.Range, device int) error {
	clip, err := audio.ReadRange(path, r)
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		slog.Info("Nothing to play", "file", path, "start", r.Start, "end", r.End)
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	cur := newCursor(clip.Samples)

	stream, err := openStream(device, float64(clip.SampleRate), cur.fill)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	slog.Info("Playing range",
		"file", path,
		"start", r.Start,
		"end", r.End,
		"duration", clip.Duration().Seconds())

	select {
	case <-cur.done:
	case <-ctx.Done():
		slog.Debug("Playback cancelled", "file", path)
	}

	return stream.Stop()
}

func openStream(device int, sampleRate float64, fill func([]int16)) (*portaudio.Stream, error) {
	if device == DefaultDevice {
		return portaudio.OpenDefaultStream(0, 1, sampleRate, framesPerBuffer, fill)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	if device < 0 || device >= len(devices) {
		return nil, fmt.Errorf("device %d out of range (have %d)", device, len(devices))
	}
	if devices[device].MaxOutputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no output channels", device, devices[device].Name)
	}

	params := portaudio.HighLatencyParameters(nil, devices[device])
	params.Output.Channels = 1
	params.SampleRate = sampleRate
	params.FramesPerBuffer = framesPerBuffer
	return portaudio.OpenStream(params, fill)
}

// Device pairs a portaudio device with the index Play accepts.
type Device struct {
	Index int
	portaudio.DeviceInfo
}

func ListOutputDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	outputs := make([]Device, 0)
	for i, d := range devices {
		if d.MaxOutputChannels > 0 {
			outputs = append(outputs, Device{Index: i, DeviceInfo: *d})
		}
	}
	return outputs, nil
}
