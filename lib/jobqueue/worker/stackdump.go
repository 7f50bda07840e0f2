package worker

import "runtime"

// fullGoroutineDump captures every goroutine's stack trace, growing the
// buffer until runtime.Stack stops reporting truncation. Used by SIGUSR2
// handlers, which dump every goroutine rather than just the caller's.
func fullGoroutineDump() []byte {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}
