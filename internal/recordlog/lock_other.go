//go:build !unix

package recordlog

func withLock(_ string, fn func() error) error {
	return fn()
}
