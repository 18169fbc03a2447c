package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := New("redis://" + mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Client())
	assert.NoError(t, c.Client().Ping(context.Background()).Err())
}

func TestNewRejectsUnparsableURL(t *testing.T) {
	_, err := New("://not-a-url")
	assert.Error(t, err)
}

func TestNewFailsWhenServerUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New("redis://" + addr)
	assert.Error(t, err)
}
