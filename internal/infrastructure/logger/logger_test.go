package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@x.com", MaskEmail("alice@x.com"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@x.com"))
}

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "203.0.113.x", MaskIP("203.0.113.7"))
	assert.Equal(t, "2001:db8::x", MaskIP("2001:db8::1"))
	assert.Equal(t, "x", MaskIP("localhost"))
}

func TestNew(t *testing.T) {
	for _, prod := range []bool{true, false} {
		l, err := New(prod)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}
