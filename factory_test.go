package vfskit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverOptionsDecode(t *testing.T) {
	type target struct {
		Host    string        `mapstructure:"host"`
		Port    int           `mapstructure:"port"`
		Passive bool          `mapstructure:"passive"`
		Timeout time.Duration `mapstructure:"timeout"`
		Hosts   []string      `mapstructure:"hosts"`
	}

	t.Run("weakly typed strings", func(t *testing.T) {
		var got target
		err := DriverOptions{
			"host":    "ftp.example.com",
			"port":    "2121",
			"passive": "true",
			"timeout": "1m30s",
			"hosts":   "a,b,c",
		}.Decode(&got)
		require.NoError(t, err)

		assert.Equal(t, target{
			Host:    "ftp.example.com",
			Port:    2121,
			Passive: true,
			Timeout: 90 * time.Second,
			Hosts:   []string{"a", "b", "c"},
		}, got)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		var got target
		require.NoError(t, DriverOptions{"colour": "blue"}.Decode(&got))
		assert.Zero(t, got)
	})

	t.Run("bad value", func(t *testing.T) {
		var got target
		err := DriverOptions{"port": "twenty"}.Decode(&got)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestCreateAdapter(t *testing.T) {
	ctx := context.Background()

	var received DriverOptions
	RegisterDriver("factory-test", func(_ context.Context, opts DriverOptions) (Adapter, error) {
		received = opts
		return newMockAdapter(), nil
	})

	adapter, err := CreateAdapter(ctx, "factory-test", DriverOptions{"root": "/tmp"})
	require.NoError(t, err)
	assert.IsType(t, &mockAdapter{}, adapter)
	assert.Equal(t, "/tmp", received["root"])

	assert.Contains(t, Drivers(), "factory-test")

	_, err = CreateAdapter(ctx, "no-such-driver", nil)
	assert.ErrorContains(t, err, "no-such-driver not registered")
}
