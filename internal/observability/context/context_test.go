package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), " user-1 ", "ADMIN")
	id, role := ActorFromContext(ctx)
	assert.Equal(t, "user-1", id)
	assert.Equal(t, "admin", role)

	id, role = ActorFromContext(context.Background())
	assert.Empty(t, id)
	assert.Empty(t, role)
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
