package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrNotFound(t *testing.T) {
	err := ErrNotFound{Resource: "device", ID: "123"}

	assert.Equal(t, "device not found: 123", err.Error())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", err)))
}

func TestIsNotFoundFalse(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(assert.AnError))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "does-not-exist", nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage driver "does-not-exist"`)
}

func TestOpenRegisteredDriver(t *testing.T) {
	var gotOptions map[string]any
	Register("test-driver", func(ctx context.Context, options map[string]any, logger *zap.Logger) (Store, error) {
		gotOptions = options
		assert.NotNil(t, logger)
		return nil, nil
	})

	_, err := Open(context.Background(), "test-driver", map[string]any{"path": "x"}, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "x"}, gotOptions)
	assert.Contains(t, Drivers(), "test-driver")
}

func TestOpenFactoryError(t *testing.T) {
	Register("failing-driver", func(ctx context.Context, options map[string]any, logger *zap.Logger) (Store, error) {
		return nil, assert.AnError
	})

	_, err := Open(context.Background(), "failing-driver", nil, zap.NewNop())

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "failed to open failing-driver store")
}
