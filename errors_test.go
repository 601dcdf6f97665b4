package bqlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormatting(t *testing.T) {
	err := NewError("AllocWriteChunk", ErrCodeSizeInvalid, "size exceeds maximum")
	require.Equal(t, "bqlog: AllocWriteChunk: size exceeds maximum", err.Error())

	scoped := NewBufferError("ForceFlush", "orders", ErrCodeNotEnoughSpace, "no room")
	require.Equal(t, "bqlog: ForceFlush: no room (log=orders)", scoped.Error())
}

func TestErrorIsComparesByCode(t *testing.T) {
	err := NewError("ReadChunk", ErrCodeCorruptionDetected, "bad head")
	sentinel := NewError("", ErrCodeCorruptionDetected, "")

	require.True(t, errors.Is(err, sentinel))
	require.False(t, errors.Is(err, NewError("", ErrCodeSizeInvalid, "")))
}

func TestWrapErrorPromotesStructuredFields(t *testing.T) {
	inner := NewBufferError("CommitWriteChunk", "orders", ErrCodeNotEnoughSpace, "queue full")
	wrapped := WrapError("ForceFlush", inner)

	require.Equal(t, "ForceFlush", wrapped.Op)
	require.Equal(t, "orders", wrapped.LogName)
	require.Equal(t, ErrCodeNotEnoughSpace, wrapped.Code)
}

func TestWrapErrorWrapsPlainErrors(t *testing.T) {
	inner := errors.New("boom")
	wrapped := WrapError("ReadChunk", inner)

	require.Equal(t, ErrCodeCorruptionDetected, wrapped.Code)
	require.Equal(t, "boom", wrapped.Msg)
	require.Equal(t, inner, wrapped.Unwrap())
}

func TestWrapErrorOnNilReturnsNil(t *testing.T) {
	require.Nil(t, WrapError("AllocWriteChunk", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("AllocWriteChunk", ErrCodeWaitAndRetry, "buffer busy")

	require.True(t, IsCode(err, ErrCodeWaitAndRetry))
	require.False(t, IsCode(err, ErrCodeSizeInvalid))
	require.False(t, IsCode(nil, ErrCodeWaitAndRetry))
}

func TestSentinelErrorsImplementErrorInterface(t *testing.T) {
	var err error = ErrNotInitialized
	require.Equal(t, "log buffer not initialized", err.Error())
}
