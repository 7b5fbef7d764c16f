package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemaining(t *testing.T) {
	b := New(130*time.Second, 10*time.Second)

	t.Run("full budget at start", func(t *testing.T) {
		left, ok := b.Remaining(0)
		assert.True(t, ok)
		assert.Equal(t, 130*time.Second, left)
	})

	t.Run("tap plus wait leaves most of the budget", func(t *testing.T) {
		// action + 1.5s wait elapsed.
		left, ok := b.Remaining(1500 * time.Millisecond)
		assert.True(t, ok)
		assert.Equal(t, 128500*time.Millisecond, left)
		assert.GreaterOrEqual(t, left, b.Floor)
	})

	t.Run("exactly the floor is still granted", func(t *testing.T) {
		left, ok := b.Remaining(120 * time.Second)
		assert.True(t, ok)
		assert.Equal(t, 10*time.Second, left)
	})

	t.Run("below the floor skips instead of shrinking", func(t *testing.T) {
		// 130-125 = 5s < 10s floor.
		left, ok := b.Remaining(125 * time.Second)
		assert.False(t, ok)
		assert.Zero(t, left)
	})

	t.Run("overrun skips", func(t *testing.T) {
		_, ok := b.Remaining(131 * time.Second)
		assert.False(t, ok)
	})

	t.Run("never returns less than the floor", func(t *testing.T) {
		for elapsed := time.Duration(0); elapsed <= 135*time.Second; elapsed += 500 * time.Millisecond {
			left, ok := b.Remaining(elapsed)
			if ok {
				assert.GreaterOrEqual(t, left, b.Floor)
				assert.Equal(t, b.Total-elapsed, left)
			} else {
				assert.Less(t, b.Total-elapsed, b.Floor)
			}
		}
	})
}

func TestNewDefaults(t *testing.T) {
	b := New(0, 0)
	assert.Equal(t, DefaultTotal, b.Total)
	assert.Equal(t, DefaultFloor, b.Floor)

	b = New(-time.Second, -time.Second)
	assert.Equal(t, DefaultTotal, b.Total)
	assert.Equal(t, DefaultFloor, b.Floor)
}
