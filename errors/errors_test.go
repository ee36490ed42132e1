package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(ErrNotFound, "draft d-1")

	assert.True(t, Is(err, ErrNotFound))
	assert.True(t, IsNotFoundError(err))
	assert.Equal(t, "draft d-1: not found", err.Error())
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithDetail(nil, "detail"))
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsAuthError(nil))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(Wrap(ErrUnauthorized, "devto")))
	assert.True(t, IsAuthError(Wrap(ErrForbidden, "medium")))
	assert.False(t, IsAuthError(New("access token expired")))
	assert.False(t, IsAuthError(ErrNotFound))
}

// Is compares error marks (message and type), not identity, so an error
// built with the same text is equivalent to the sentinel.
func TestIsAuthError_MatchesByMark(t *testing.T) {
	assert.True(t, IsAuthError(New("unauthorized")))
	assert.False(t, IsAuthError(fmt.Errorf("unauthorized")))
}

func TestNewNotConnectedError(t *testing.T) {
	err := NewNotConnectedError([]string{"hashnode", "medium"})

	require.True(t, Is(err, ErrPlatformNotConnected))
	assert.Contains(t, err.Error(), "hashnode, medium")
}

func TestDetailsSurviveWrapping(t *testing.T) {
	err := WithDetail(New("insert failed"), "Job ID: j-1")
	err = Wrap(err, "failed to record attempt")

	assert.Contains(t, GetAllDetails(err), "Job ID: j-1")
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("title exceeds %d characters", 250)

	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "title exceeds 250 characters")
}

func ExampleWrap() {
	err := Wrap(New("connection refused"), "failed to publish to devto")
	fmt.Println(err)
	// Output: failed to publish to devto: connection refused
}
