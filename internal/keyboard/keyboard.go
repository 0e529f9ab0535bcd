// Package keyboard runs the tick loop's one auxiliary thread: a goroutine
// blocked on stdin, posting keystrokes to a bounded channel the main loop
// drains non-blockingly. This is the only concurrency in the system beyond
// the main tick loop itself.
package keyboard

import "os"

// channelDepth bounds the side channel. A slow main loop simply drops
// keystrokes past this depth rather than applying backpressure to the
// reader goroutine — an operator mashing 'c' faster than 60Hz doesn't need
// every keystroke delivered, just the first one.
const channelDepth = 16

// Channel delivers keystrokes read from stdin to a non-blocking consumer.
type Channel struct {
	keys chan byte
}

// Start puts the console into raw mode (best-effort; failure to do so just
// means the operator has to press Enter after a command) and begins
// reading single bytes from stdin in a background goroutine.
func Start() *Channel {
	enableRawMode()

	c := &Channel{keys: make(chan byte, channelDepth)}

	go c.readLoop()

	return c
}

func (c *Channel) readLoop() {
	buf := make([]byte, 1)

	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			close(c.keys)
			return
		}

		select {
		case c.keys <- buf[0]:
		default:
			// Channel full: drop the keystroke rather than block the reader
			// (and, transitively, the next keystroke after it).
		}
	}
}

// Poll returns the next pending keystroke, if any, without blocking.
func (c *Channel) Poll() (byte, bool) {
	select {
	case b, ok := <-c.keys:
		return b, ok
	default:
		return 0, false
	}
}
