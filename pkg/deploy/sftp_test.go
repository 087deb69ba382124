package deploy

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelReaderPassesThrough(t *testing.T) {
	reader := &cancelReader{ctx: context.Background(), reader: strings.NewReader("payload")}

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestCancelReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &cancelReader{ctx: ctx, reader: strings.NewReader("payload")}

	n, err := io.Copy(io.Discard, reader)
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
