package backend

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	is := assert.New(t)

	type entry struct {
		Value       string `json:"value"`
		ExpiresAtMs int64  `json:"expiresAtMs"`
	}

	codec := JSONCodec[entry]{}

	data, err := codec.Marshal(entry{Value: "v", ExpiresAtMs: 123})
	require.NoError(t, err)

	out, err := codec.Unmarshal(data)
	require.NoError(t, err)
	is.Equal(entry{Value: "v", ExpiresAtMs: 123}, out)
}

func TestJSONCodec_UnmarshalGarbage(t *testing.T) {
	codec := JSONCodec[int]{}
	_, err := codec.Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedisCache[string](client, "stash:", JSONCodec[string]{})
	assert.Equal(t, "stash:user-1", r.key("user-1"))
}

func TestRedisCache_UnreachableServerDegradesToMiss(t *testing.T) {
	// Nothing listens on this address; every operation should fold its
	// failure into a miss instead of surfacing an error.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedisCache[string](client, "stash:", JSONCodec[string]{})

	r.Set("k", "v", 1000)
	_, found := r.Get("k")
	assert.False(t, found)
	assert.False(t, r.Clear("k"))
}
