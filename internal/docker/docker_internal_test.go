package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_UnderLimit(t *testing.T) {
	b := newBoundedBuffer(100)
	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", b.String())
}

func TestBoundedBuffer_TruncatesAtLimit(t *testing.T) {
	b := newBoundedBuffer(10)
	n, err := b.Write([]byte(strings.Repeat("x", 25)))
	require.NoError(t, err)
	// Writers always see full acceptance so copying keeps draining.
	assert.Equal(t, 25, n)

	out := b.String()
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 10)))
	assert.True(t, strings.HasSuffix(out, "[output truncated]"))
}

func TestBoundedBuffer_ConcurrentWriteAndRead(t *testing.T) {
	// An aborted exec reads the buffer while the copier may still be
	// writing into it; both paths must be safe under the race detector.
	b := newBoundedBuffer(1 << 16)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Write([]byte("chunk of agent output\n"))
		}
	}()

	for i := 0; i < 1000; i++ {
		_ = b.String()
	}
	<-done

	assert.True(t, strings.HasPrefix(b.String(), "chunk of agent output\n"))
}

func TestBoundedBuffer_DiscardsAfterFull(t *testing.T) {
	b := newBoundedBuffer(4)
	_, err := b.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = b.Write([]byte("efgh"))
	require.NoError(t, err)

	assert.Equal(t, "abcd\n[output truncated]", b.String())
}
