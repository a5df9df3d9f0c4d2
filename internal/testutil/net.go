// Package testutil provides helpers shared by the package tests: localhost
// listeners, polling, and wire fixtures.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Listen opens a TCP listener on an ephemeral localhost port. The listener is
// closed when the test ends.
func Listen(t testing.TB) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// CreateListeners opens n localhost listeners and returns them with their
// ports, in the same order.
func CreateListeners(t testing.TB, n int) ([]net.Listener, []int) {
	t.Helper()
	listeners := make([]net.Listener, n)
	ports := make([]int, n)
	for i := range listeners {
		listeners[i] = Listen(t)
		ports[i] = Port(listeners[i])
	}
	return listeners, ports
}

// Port returns the TCP port a listener is bound to.
func Port(l net.Listener) int {
	return l.Addr().(*net.TCPAddr).Port
}

// ClosedPort returns a localhost port nothing is listening on.
func ClosedPort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := Port(l)
	require.NoError(t, l.Close())
	return port
}

// Accept waits up to timeout for one inbound connection on l. The accepted
// connection is closed when the test ends.
func Accept(t testing.TB, l net.Listener, timeout time.Duration) net.Conn {
	t.Helper()

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		t.Cleanup(func() { _ = r.conn.Close() })
		return r.conn
	case <-time.After(timeout):
		t.Fatalf("no connection accepted on %s within %v", l.Addr(), timeout)
		return nil
	}
}

// WaitFor calls cond on the test goroutine every few milliseconds until it
// returns true, failing the test after timeout. Unlike require.Eventually the
// condition never runs concurrently with the test, so it may drive
// single-goroutine APIs such as a coordinator frame.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			require.Fail(t, "condition not met before timeout", msgAndArgs...)
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}
