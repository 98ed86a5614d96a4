package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	codeA Code = "code_a"
	codeB Code = "code_b"
)

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(codeA, nil, "noop"))
	assert.NoError(t, Wrapf(codeA, nil, "noop %d", 1))
}

func TestIsMatchesCode(t *testing.T) {
	err := Wrap(codeA, io.EOF, "read")

	assert.True(t, Is(err, codeA))
	assert.False(t, Is(err, codeB))
	assert.True(t, Is(err, io.EOF))
	assert.Equal(t, "code_a: read: EOF", err.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, codeB, CodeOf(Newf(codeB, "id %s", "x")))
	assert.Equal(t, codeA, CodeOf(codeA))
	assert.Equal(t, Code(""), CodeOf(io.EOF))
	assert.Equal(t, Code(""), CodeOf(nil))
}
