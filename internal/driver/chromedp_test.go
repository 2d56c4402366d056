package driver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRunError(t *testing.T) {
	queryErr := fmt.Errorf("query %q: %w", "tr.referee", context.Canceled)

	t.Run("success", func(t *testing.T) {
		assert.NoError(t, classifyRunError(context.Background(), context.Background(), nil))
	})

	t.Run("caller cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classifyRunError(ctx, context.Background(), queryErr)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, ErrBrowserGone))
	})

	t.Run("browser died", func(t *testing.T) {
		browserCtx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classifyRunError(context.Background(), browserCtx, queryErr)
		assert.ErrorIs(t, err, ErrBrowserGone)
		assert.Contains(t, err.Error(), "tr.referee")
	})

	t.Run("plain failure", func(t *testing.T) {
		plain := errors.New("could not find node")
		assert.Equal(t, plain, classifyRunError(context.Background(), context.Background(), plain))
	})
}
