package tachyon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindRoundTrip(t *testing.T) {
	err := NewError(FileDoesNotExist, "/a/b")
	assert.True(t, Is(err, FileDoesNotExist))
	assert.False(t, Is(err, FileAlreadyExist))
	assert.Equal(t, "FileDoesNotExist: /a/b", err.Error())
}

func TestKindOfNonTachyonError(t *testing.T) {
	assert.Equal(t, UnknownError, KindOf(assertError{}))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
