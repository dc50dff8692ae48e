package utils

import "io"

// Close closes c and drops the error. For deferred cleanup of response
// bodies and watchers where nothing useful can be done with a failure.
func Close(c io.Closer) {
	_ = c.Close()
}
