// Command archivistd runs the archivist daemon: it accepts recorder webhooks,
// supervises recorder processes, and drives the end-of-session pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
