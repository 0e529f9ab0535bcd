package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_PollDrainsInOrderThenEmpty(t *testing.T) {
	c := &Channel{keys: make(chan byte, channelDepth)}
	c.keys <- 'c'
	c.keys <- 'r'

	b, ok := c.Poll()
	assert.True(t, ok)
	assert.Equal(t, byte('c'), b)

	b, ok = c.Poll()
	assert.True(t, ok)
	assert.Equal(t, byte('r'), b)

	_, ok = c.Poll()
	assert.False(t, ok, "polling an empty channel must not block")
}

func TestChannel_PollNeverBlocksWhenClosed(t *testing.T) {
	c := &Channel{keys: make(chan byte, channelDepth)}
	close(c.keys)

	_, ok := c.Poll()
	assert.False(t, ok)
}
