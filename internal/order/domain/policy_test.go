package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissivePolicy(t *testing.T) {
	p := PermissivePolicy{}

	assert.NoError(t, p.Allow(StatusPending, StatusDelivered))
	assert.NoError(t, p.Allow(StatusDelivered, StatusAssigned))
	assert.ErrorIs(t, p.Allow(StatusPending, "teleported"), ErrInvalidEventType)
	assert.ErrorIs(t, p.Allow(StatusPending, StatusPending), ErrInvalidEventType)
}

func TestStrictPolicy(t *testing.T) {
	p := StrictPolicy{}

	tests := []struct {
		current string
		target  string
		wantErr error
	}{
		{StatusPending, StatusAssigned, nil},
		{StatusAssigned, StatusEnRoute, nil},
		{StatusEnRoute, StatusPickedUp, nil},
		{StatusPickedUp, StatusDelivered, nil},
		{StatusPending, StatusCancelled, nil},
		{StatusPickedUp, StatusCancelled, nil},
		{StatusPending, StatusEnRoute, ErrTransitionNotAllowed},
		{StatusAssigned, StatusDelivered, ErrTransitionNotAllowed},
		{StatusDelivered, StatusAssigned, ErrTransitionNotAllowed},
		{StatusCancelled, StatusAssigned, ErrTransitionNotAllowed},
		{StatusPending, "teleported", ErrInvalidEventType},
	}

	for _, tt := range tests {
		err := p.Allow(tt.current, tt.target)
		if tt.wantErr == nil {
			assert.NoError(t, err, "%s -> %s", tt.current, tt.target)
		} else {
			assert.ErrorIs(t, err, tt.wantErr, "%s -> %s", tt.current, tt.target)
		}
	}
}

func TestIsActive(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.True(t, IsActive(s))
	}
	assert.False(t, IsActive(StatusDelivered))
	assert.False(t, IsActive(StatusCancelled))
}
