package process

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	runner := NewRunner()
	runner.Register("hello", "echo", "hello")

	t.Run("Executes Registered Command", func(t *testing.T) {
		result, err := runner.Run(context.Background(), "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello", result.Output)
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "hacker_script", nil)
		assert.ErrorIs(t, err, ErrToolNotRegistered)
	})

	t.Run("Passes Arguments via Env Vars", func(t *testing.T) {
		runner.Register("echo_env", "sh", "-c", "echo $MPC_ARG_MSG $MPC_ARG_PORT")

		result, err := runner.Run(context.Background(), "echo_env", map[string]any{
			"msg":  "SecretMessage",
			"port": 8010,
		})
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage 8010", result.Output)
	})

	t.Run("Arguments Are Never Flags", func(t *testing.T) {
		runner.Register("argc", "sh", "-c", "echo $#")

		result, err := runner.Run(context.Background(), "argc", map[string]any{"x": "; rm -rf /"})
		require.NoError(t, err)
		assert.Equal(t, "0", result.Output)
	})

	t.Run("Decodes JSON Result", func(t *testing.T) {
		runner.Register("commit", "sh", "-c", `echo "verifying..."; echo '{"commitment": "0xabc"}'`)

		result, err := runner.Run(context.Background(), "commit", nil)
		require.NoError(t, err)
		v, ok := result.Field("commitment")
		assert.True(t, ok)
		assert.Equal(t, "0xabc", v)
	})

	t.Run("Non-Zero Exit Is An Engine Error", func(t *testing.T) {
		runner.Register("broken", "sh", "-c", "echo partial; echo boom >&2; exit 3")

		result, err := runner.Run(context.Background(), "broken", nil)
		require.Error(t, err)
		assert.True(t, domain.IsEngineFailure(err))

		var engineErr *domain.EngineError
		require.True(t, errors.As(err, &engineErr))
		assert.Equal(t, "broken", engineErr.Tool)
		assert.Equal(t, 3, engineErr.ExitCode)
		assert.Contains(t, engineErr.Stderr, "boom")
		assert.Contains(t, engineErr.Error(), "Stderr: boom")
		assert.Equal(t, 3, result.ExitCode)
		assert.Contains(t, result.Stdout, "partial")
	})

	t.Run("Honours Context", func(t *testing.T) {
		runner.Register("sleepy", "sleep", "10")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, "sleepy", nil)
		assert.True(t, domain.IsEngineFailure(err))
	})
}

func TestRunner_WithRegistry(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	runner := NewRunner(WithRegistry(map[string]Tool{
		"env": {
			Name:    "env",
			Command: "sh",
			Args:    []string{"-c", "echo $ENGINE_HOME"},
			Env:     map[string]string{"ENGINE_HOME": "/opt/mp-spdz"},
		},
	}))

	assert.Equal(t, []string{"env"}, runner.Names())
	assert.True(t, runner.Has("env"))

	result, err := runner.Run(context.Background(), "env", nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/mp-spdz", result.Output)
}
