package annotation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, opts ...RecorderOption) *Recorder {
	t.Helper()
	cfg, err := NewConfig(t.TempDir())
	require.NoError(t, err)
	return NewRecorder(cfg, opts...)
}

func writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func readLogLines(t *testing.T, r *Recorder) []string {
	t.Helper()
	f, err := os.Open(r.Config().LabelsPath())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestAnnotateWritesLabelAndCopy(t *testing.T) {
	id := uuid.MustParse("6f1c1b5e-3b1a-4b6e-9a57-0d5f0b9f2a11")
	r := newTestRecorder(t, WithIDGenerator(func() (uuid.UUID, error) { return id, nil }))

	content := []byte("RIFF....WAVEfmt fake audio bytes")
	src := writeSource(t, "a.WAV", content)

	label, err := r.Annotate(context.Background(), AnnotationData{
		FilePath: src,
		Entire:   Range{Start: 0, End: 10},
		Point:    Range{Start: 2, End: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, id.String()+".wav", label.File)

	lines := readLogLines(t, r)
	require.Len(t, lines, 1)
	assert.Equal(t,
		fmt.Sprintf(`{"file":"%s.wav","entire":{"start":0,"end":10},"point":{"start":2,"end":2}}`, id),
		lines[0])

	copied, err := os.ReadFile(filepath.Join(r.Config().SaveRootDir, label.File))
	require.NoError(t, err)
	assert.Equal(t, content, copied)
}

func TestAnnotateAppendsOneLinePerCall(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		src := writeSource(t, fmt.Sprintf("clip%d.mp3", i), []byte{byte(i)})
		_, err := r.Annotate(ctx, AnnotationData{FilePath: src, Entire: Range{End: float64(i)}})
		require.NoError(t, err)
		assert.Len(t, readLogLines(t, r), i+1)
	}

	labels, err := r.Labels()
	require.NoError(t, err)
	require.Len(t, labels, 3)
	for i, l := range labels {
		assert.Equal(t, float64(i), l.Entire.End, "labels must keep call order")
		assert.FileExists(t, filepath.Join(r.Config().SaveRootDir, l.File))
		assert.True(t, strings.HasSuffix(l.File, ".mp3"))
	}
}

func TestAnnotateMissingExtension(t *testing.T) {
	r := newTestRecorder(t)
	src := writeSource(t, "noext", []byte("data"))

	_, err := r.Annotate(context.Background(), AnnotationData{FilePath: src})
	require.ErrorIs(t, err, ErrMissingExtension)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid_input", Kind(err))

	assert.Empty(t, readLogLines(t, r))
	assert.NoDirExists(t, r.Config().SaveRootDir)
}

func TestAnnotateMissingSourceLeavesLogUntouched(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	src := writeSource(t, "ok.ogg", []byte("ogg"))
	_, err := r.Annotate(ctx, AnnotationData{FilePath: src})
	require.NoError(t, err)

	_, err = r.Annotate(ctx, AnnotationData{FilePath: filepath.Join(t.TempDir(), "gone.wav")})
	require.ErrorIs(t, err, ErrSourceNotFound)
	assert.Equal(t, "not_found", Kind(err))

	assert.Len(t, readLogLines(t, r), 1)
	entries, err := os.ReadDir(r.Config().SaveRootDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "labels log plus one copy, no temp files")
}

func TestAnnotateEmptyPath(t *testing.T) {
	r := newTestRecorder(t)
	_, err := r.Annotate(context.Background(), AnnotationData{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnnotateCancelledContext(t *testing.T) {
	r := newTestRecorder(t)
	src := writeSource(t, "a.wav", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Annotate(ctx, AnnotationData{FilePath: src})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, readLogLines(t, r))
}

func TestAnnotateConcurrent(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	const n = 32
	srcs := make([]string, n)
	for i := range srcs {
		srcs[i] = writeSource(t, fmt.Sprintf("s%02d.wav", i), []byte(strings.Repeat(string(rune('a'+i%26)), 100+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Annotate(ctx, AnnotationData{FilePath: srcs[i], Point: Range{Start: float64(i), End: float64(i)}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	lines := readLogLines(t, r)
	require.Len(t, lines, n)

	seen := make(map[string]bool)
	for _, line := range lines {
		var l Label
		require.NoError(t, json.Unmarshal([]byte(line), &l), "line must be whole: %q", line)
		assert.False(t, seen[l.File], "duplicate id %s", l.File)
		seen[l.File] = true

		copied, err := os.ReadFile(filepath.Join(r.Config().SaveRootDir, l.File))
		require.NoError(t, err)
		want, err := os.ReadFile(srcs[int(l.Point.Start)])
		require.NoError(t, err)
		assert.Equal(t, want, copied)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	r := newTestRecorder(t)
	require.NoError(t, r.EnsureDir())
	require.NoError(t, r.EnsureDir())
	assert.DirExists(t, r.Config().SaveRootDir)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"/tmp/a.WAV", "wav", false},
		{"/tmp/a.b.Mp3", "mp3", false},
		{"/tmp/dir.d/clip", "", true},
		{"/tmp/.hidden", "", true},
		{"/tmp/.hidden.OGG", "ogg", false},
		{"/tmp/trailing.", "", true},
	}
	for _, tt := range tests {
		got, err := Extension(tt.path)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMissingExtension, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestLabelsMissingLog(t *testing.T) {
	r := newTestRecorder(t)
	labels, err := r.Labels()
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestReadLabelsFromMalformed(t *testing.T) {
	in := `{"file":"a.wav","entire":{"start":0,"end":1},"point":{"start":0,"end":0}}

not json
`
	_, err := ReadLabelsFrom(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestFindLabel(t *testing.T) {
	r := newTestRecorder(t)
	src := writeSource(t, "x.wav", []byte("x"))
	label, err := r.Annotate(context.Background(), AnnotationData{FilePath: src, Point: Range{Start: 1, End: 2}})
	require.NoError(t, err)

	got, ok, err := r.FindLabel(label.File)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, label, got)

	_, ok, err = r.FindLabel("missing.wav")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMediaPathRejectsTraversal(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	require.NoError(t, err)

	_, err = cfg.MediaPath("../labels.jsonl")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = cfg.MediaPath("")
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := cfg.MediaPath("abc.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.SaveRootDir, "abc.wav"), p)
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig("")
	assert.ErrorIs(t, err, ErrInvalidInput)

	dir := t.TempDir()
	cfg, err := NewConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DirName), cfg.SaveRootDir)
	assert.Equal(t, filepath.Join(dir, DirName, LabelsFile), cfg.LabelsPath())
}
