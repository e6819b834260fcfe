package lock_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

func TestRegistry_RegisterInitialState(t *testing.T) {
	r := lock.NewRegistry()

	l, err := r.Register("L1", "Front door", lock.WithOwner("owner-1"))
	require.NoError(t, err)

	assert.Equal(t, "L1", l.ID)
	assert.Equal(t, "Front door", l.Name)
	assert.Equal(t, "owner-1", l.OwnerID)
	assert.Equal(t, models.StateLocked, l.PhysicalState)
	assert.Equal(t, 100, l.BatteryLevel)
	assert.Nil(t, l.CurrentGrant)
	assert.False(t, l.LastSeen.IsZero())
}

func TestRegistry_RegisterRejectsBadInput(t *testing.T) {
	r := lock.NewRegistry()

	tests := []struct {
		name     string
		id       string
		lockName string
		want     error
	}{
		{"missing id", "", "Door", lock.ErrInvalidArgument},
		{"missing name", "L1", "", lock.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.id, tt.lockName)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := lock.NewRegistry()

	_, err := r.Register("L1", "Door")
	require.NoError(t, err)

	_, err = r.Register("L1", "Other door")
	assert.ErrorIs(t, err, lock.ErrAlreadyExists)

	l, err := r.Get("L1")
	require.NoError(t, err)
	assert.Equal(t, "Door", l.Name)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := lock.NewRegistry()

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, lock.ErrNotFound)
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	r := lock.NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		_, err := r.Register(id, "Door "+id)
		require.NoError(t, err)
	}

	var ids []string
	for _, l := range r.List() {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := lock.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = r.Register(fmt.Sprintf("L%d", n%25), "Door")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Count())
	assert.Len(t, r.List(), 25)
}
