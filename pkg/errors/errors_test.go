package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"configuration", Configuration("parse", fmt.Errorf("bad metric")), CategoryConfiguration},
		{"persistence wrapped twice", fmt.Errorf("outer: %w", Persistence("commit", fmt.Errorf("disk full"))), CategoryPersistence},
		{"not found sentinel", fmt.Errorf("rule x: %w", ErrNotFound), CategoryNotFound},
		{"conflict sentinel", ErrNotPending, CategoryConflict},
		{"expired is a conflict", ErrExpired, CategoryConflict},
		{"validation", Validation("bind", fmt.Errorf("missing field")), CategoryValidation},
		{"plain error", fmt.Errorf("boom"), CategoryInternal},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategoryOf(tt.err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusCode(fmt.Errorf("x: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusCode(ErrNotPending))
	assert.Equal(t, http.StatusGone, StatusCode(ErrExpired))
	assert.Equal(t, http.StatusBadRequest, StatusCode(Configuration("op", fmt.Errorf("bad"))))
	assert.Equal(t, http.StatusBadRequest, StatusCode(Validation("op", fmt.Errorf("bad"))))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(Transient("op", ErrCircuitOpen)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(Persistence("op", fmt.Errorf("bad"))))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := Transient("gateway.execute", cause)
	require.Error(t, err)
	assert.True(t, Is(err, cause))
	assert.Nil(t, Wrap(CategoryTransient, "op", nil))
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "gateway", MaxFailures: 2, ResetTimeout: time.Minute})
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }

	failing := func(context.Context) error { return fmt.Errorf("unavailable") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), ok)
	assert.True(t, Is(err, ErrCircuitOpen))

	current = current.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}
