package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimitResult(t *testing.T) {
	res, err := parseRateLimitResult([]interface{}{int64(1), int64(4), int64(60)}, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 60*time.Second, res.ResetIn)
	assert.Equal(t, 5, res.Limit)

	res, err = parseRateLimitResult([]interface{}{int64(0), int64(0), int64(12)}, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestParseRateLimitResultMalformed(t *testing.T) {
	_, err := parseRateLimitResult("OK", 5)
	assert.Error(t, err)

	_, err = parseRateLimitResult([]interface{}{"1", int64(0), int64(1)}, 5)
	assert.Error(t, err)
}

func TestNewClientAddr(t *testing.T) {
	c := NewClient(Config{Host: "cache.internal", Port: "6380", DB: 2})
	defer c.Close()
	assert.Equal(t, "cache.internal:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
}
