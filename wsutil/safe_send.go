package wsutil

import "log"

// SafeSend delivers data to a client send channel without blocking and
// without panicking if the channel was already closed by the hub. A full or
// closed channel drops the message; the next snapshot supersedes it anyway.
func SafeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[wsutil] SafeSend recovered panic: %v", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}
