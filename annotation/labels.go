package annotation

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const maxLabelLine = 1 << 20

func (r *Recorder) appendLabel(label Label) error {
	line, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("failed to marshal label: %w", err)
	}
	line = append(line, '\n')

	r.appendMu.Lock()
	defer r.appendMu.Unlock()

	f, err := os.OpenFile(r.config.LabelsPath(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to open labels log: %w", ErrStorage, err)
	}

	// One write per line keeps lines whole under O_APPEND.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to append label: %w", ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close labels log: %w", ErrStorage, err)
	}
	return nil
}

// Labels returns every label in the log in the order they were written.
// A missing log is an empty log.
func (r *Recorder) Labels() ([]Label, error) {
	f, err := os.Open(r.config.LabelsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Label{}, nil
		}
		return nil, fmt.Errorf("%w: failed to open labels log: %w", ErrStorage, err)
	}
	defer f.Close()

	return ReadLabelsFrom(f)
}

// FindLabel returns the label whose copy is named file.
func (r *Recorder) FindLabel(file string) (Label, bool, error) {
	labels, err := r.Labels()
	if err != nil {
		return Label{}, false, err
	}
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i].File == file {
			return labels[i], true, nil
		}
	}
	return Label{}, false, nil
}

// ReadLabelsFrom decodes JSON lines from rd. Blank lines are skipped and a
// malformed line fails with its line number.
func ReadLabelsFrom(rd io.Reader) ([]Label, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), maxLabelLine)

	labels := make([]Label, 0)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var label Label
		if err := json.Unmarshal([]byte(line), &label); err != nil {
			return nil, fmt.Errorf("%w: malformed label on line %d: %w", ErrStorage, lineNo, err)
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read labels log: %w", ErrStorage, err)
	}
	return labels, nil
}
