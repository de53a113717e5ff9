// File: cmd/vision-assistant/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(context.Canceled))
	assert.Equal(t, 0, exitCode(errors.Join(errors.New("wrapped"), context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log", func(t *testing.T) {
		var written []byte
		var code = -1
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = data
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("scroll resolver exploded")
		}()

		assert.Equal(t, 1, code)
		assert.True(t, strings.HasPrefix(string(written), "panic: scroll resolver exploded"))
	})

	t.Run("write failure still exits", func(t *testing.T) {
		var code = -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("again")
		}()
		assert.Equal(t, 1, code)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		osExit = func(int) { t.Fatal("exit must not be called") }
		func() { defer handlePanic() }()
	})
}

func TestInteractive(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\nversion\nexit\nversion\n")

	require.NoError(t, interactive(context.Background(), in, &out))

	assert.Contains(t, out.String(), "vision-assistant > ")
	assert.Equal(t, 1, strings.Count(out.String(), "vision-assistant Alpha ("))
	assert.Contains(t, out.String(), "Exiting vision-assistant.")
}

func TestInteractive_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, interactive(context.Background(), strings.NewReader("frobnicate\n"), &out))
	assert.Contains(t, out.String(), "Error: unknown command")
}
