package commandrunner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrapeBufferReturnsWrittenBytesInOrder(t *testing.T) {
	b := newScrapeBuffer(16)
	b.Write([]byte("hello"))
	b.Write([]byte(" world"))

	assert.Equal(t, "hello world", b.String())
}

func TestScrapeBufferOverwritesOldestPastCapacity(t *testing.T) {
	b := newScrapeBuffer(5)
	b.Write([]byte("abcdefgh"))

	assert.Equal(t, "defgh", b.String())
}

func TestScrapeBufferIdleIsFalseBeforeFirstWrite(t *testing.T) {
	b := newScrapeBuffer(16)
	assert.False(t, b.Idle(time.Nanosecond))
}

func TestScrapeBufferIdleReportsElapsedSilence(t *testing.T) {
	b := newScrapeBuffer(16)
	b.Write([]byte("x"))

	assert.False(t, b.Idle(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Idle(time.Millisecond))
}
