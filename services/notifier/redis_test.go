package notifier

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier(t *testing.T) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()

	// Test if Redis is available
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	stream := "test_deals_" + uuid.NewString()
	defer client.Del(ctx, stream)

	n := NewRedisNotifier("localhost:6379", 0, stream, 2)
	defer n.Close()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, n.Send(ctx, "-1001", text, true))
	}
	require.NoError(t, n.Trim(ctx))

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	last := entries[1].Values
	assert.Equal(t, "-1001", last["channel"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("three")), last["b64_message"])
	assert.Equal(t, "1", last["disable_preview"])
}
