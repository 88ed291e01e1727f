package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeamCorrelationBufferAppliedAndMark(t *testing.T) {
	buf := NewTeamCorrelationBuffer()
	assert.False(t, buf.Applied("tu1"))

	buf.MarkApplied("tu1")
	assert.True(t, buf.Applied("tu1"))
}

func TestTeamCorrelationBufferEvictsOldestPastCap(t *testing.T) {
	buf := NewTeamCorrelationBuffer()
	for i := 0; i < teamBufferCap+10; i++ {
		buf.MarkApplied(fmt.Sprintf("tu-%d", i))
	}
	assert.False(t, buf.Applied("tu-0"), "oldest entry should have been evicted")
	assert.True(t, buf.Applied(fmt.Sprintf("tu-%d", teamBufferCap+9)))
}

func TestTeamCorrelationBufferMarkAppliedIsIdempotent(t *testing.T) {
	buf := NewTeamCorrelationBuffer()
	buf.MarkApplied("tu1")
	buf.MarkApplied("tu1")
	assert.Len(t, buf.order, 1)
}
