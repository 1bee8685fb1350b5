package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	in := map[string]float64{"Food": 120.5, "Rent": 2000}

	a, err := Key("forecast", "m1", "u1", in)
	require.NoError(t, err)
	b, err := Key("forecast", "m1", "u1", map[string]float64{"Rent": 2000, "Food": 120.5})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^forecast:m1:[0-9a-f]{16}$`, a)

	c, err := Key("forecast", "m2", "u1", in)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := Key("forecast", "m1", "u2", in)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)

	// input boundaries are part of the hash
	e, err := Key("forecast", "m1", "ab", "c")
	require.NoError(t, err)
	f, err := Key("forecast", "m1", "a", "bc")
	require.NoError(t, err)
	assert.NotEqual(t, e, f)

	_, err = Key("forecast", "m1", make(chan int))
	assert.Error(t, err)
}

func TestRistretto(t *testing.T) {
	c, err := NewRistretto(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.True(t, c.Set("k", []byte(`{"v":1}`), time.Minute))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"v":1}`), got)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestRistrettoExpiry(t *testing.T) {
	c, err := NewRistretto(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Set("k", []byte("v"), 20*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestNewRistrettoRejectsZeroSize(t *testing.T) {
	_, err := NewRistretto(0)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	assert.False(t, c.Set("k", []byte("v"), time.Minute))
	_, ok := c.Get("k")
	assert.False(t, ok)
}
