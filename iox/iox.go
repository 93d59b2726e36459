// Package iox holds small I/O helpers shared by the CLI and its tests.
package iox

import (
	"io"
	"os"
)

// Stdin is the path that selects standard input in OpenInput.
const Stdin = "-"

// DiscardClose closes c, dropping the error. For defers where a failed
// close changes nothing:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn, dropping the error (logger Sync, Flush).
func DiscardErr(fn func() error) { _ = fn() }

// OpenInput opens path for reading. Empty or "-" yields standard input,
// which Close leaves open.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == Stdin {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
