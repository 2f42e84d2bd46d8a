// File: cmd/scalpel-mimic/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup Helpers ---

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("shutting down: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("Writes Panic Log", func(t *testing.T) {
		var written string
		var code int
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			written = name + ":" + string(data)
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("synthetic failure")
		}()

		assert.Equal(t, 2, code)
		assert.True(t, strings.HasPrefix(written, panicLogFile+":panic: synthetic failure"), written)
	})

	t.Run("Log Write Fails", func(t *testing.T) {
		var code int
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("second failure")
		}()
		assert.Equal(t, 2, code)
	})

	t.Run("No Panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestRunInteractive(t *testing.T) {
	defer resetMocks()
	osExit = func(c int) { require.FailNow(t, "unexpected exit", "code %d", c) }

	in := strings.NewReader("\nversion\nexit\nversion\n")
	var out bytes.Buffer
	runInteractive(context.Background(), in, &out)

	assert.Equal(t, 1, strings.Count(out.String(), "scalpel-mimic Alpha"), "commands after exit are not run")
	assert.Equal(t, 3, strings.Count(out.String(), "scalpel-mimic > "))
}
