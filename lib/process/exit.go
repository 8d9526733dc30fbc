// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. The status is 1 unless err
// (or something it wraps) implements ExitCoder.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}
