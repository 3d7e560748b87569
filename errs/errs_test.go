package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMatchesKind(t *testing.T) {
	err := New(NotFound, "session: unknown identifier")
	assert.True(t, errors.Is(err, NotFound))
	assert.False(t, errors.Is(err, Unauthorized))
	assert.Equal(t, "session: unknown identifier", err.Error())
}

func TestWrapPreservesKindAndMessage(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Io, "config: open", cause)
	require.True(t, errors.Is(err, Io))
	assert.Contains(t, err.Error(), "config: open")
	assert.Contains(t, err.Error(), "boom")
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(Crypto, "no cause", nil)
	assert.True(t, errors.Is(err, Crypto))
	assert.Equal(t, "no cause", err.Error())
}

func TestKindOfSentinel(t *testing.T) {
	assert.Equal(t, Unauthorized, KindOf(Unauthorized))
}

func TestKindOfWrapped(t *testing.T) {
	err := Wrap(Protocol, "bad frame", errors.New("short read"))
	assert.Equal(t, Protocol, KindOf(err))
}

func TestKindOfUnknownDefaultsInvalid(t *testing.T) {
	assert.Equal(t, Invalid, KindOf(errors.New("unrelated")))
}
