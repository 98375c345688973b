package testutil

import (
	"fmt"
	"net"
	"time"
)

// WaitForPort polls a TCP address until it accepts connections or the
// timeout elapses.
func WaitForPort(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %s waiting for %s", timeout, addr)
}
