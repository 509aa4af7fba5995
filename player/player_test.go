package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursorFillsThenSignals(t *testing.T) {
	cur := newCursor([]int16{1, 2, 3, 4, 5})

	out := make([]int16, 3)
	cur.fill(out)
	assert.Equal(t, []int16{1, 2, 3}, out)
	select {
	case <-cur.done:
		t.Fatal("done before clip was consumed")
	default:
	}

	cur.fill(out)
	assert.Equal(t, []int16{4, 5, 0}, out)
	<-cur.done

	// further callbacks emit silence and do not panic on the closed channel
	cur.fill(out)
	assert.Equal(t, []int16{0, 0, 0}, out)
}
