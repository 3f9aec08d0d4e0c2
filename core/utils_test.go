package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ctxKey struct{}

func TestWithoutCancel(t *testing.T) {
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey{}, "v"), time.Minute)
	ctx := WithoutCancel(parent)
	cancel()

	assert.Error(t, parent.Err())
	assert.NoError(t, ctx.Err())
	assert.Nil(t, ctx.Done())
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "v", ctx.Value(ctxKey{}))
}
