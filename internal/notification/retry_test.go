package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notify-delivery-backend/config"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 9*time.Second, p.Delay(2))
	assert.Equal(t, 15*time.Second, p.Delay(3))
	assert.Equal(t, 15*time.Second, p.Delay(10))
}

func TestRetryPolicy_FromConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultRetryPolicy(), RetryPolicyFromConfig(cfg.Delivery))
}

func TestBackoff(t *testing.T) {
	t.Run("fresh delivery gets three attempts", func(t *testing.T) {
		b := DefaultRetryPolicy().Start(0)
		assert.True(t, b.Remaining())
		assert.Equal(t, 1, b.Attempt())

		d, ok := b.Next()
		assert.True(t, ok)
		assert.Equal(t, 3*time.Second, d)

		d, ok = b.Next()
		assert.True(t, ok)
		assert.Equal(t, 9*time.Second, d)

		_, ok = b.Next()
		assert.False(t, ok)
		assert.False(t, b.Remaining())
		assert.Equal(t, 3, b.Made())
	})

	t.Run("resumed delivery keeps its count", func(t *testing.T) {
		b := DefaultRetryPolicy().Start(2)
		assert.True(t, b.Remaining())
		assert.Equal(t, 3, b.Attempt())

		_, ok := b.Next()
		assert.False(t, ok)
	})

	t.Run("exhausted delivery has nothing left", func(t *testing.T) {
		assert.False(t, DefaultRetryPolicy().Start(3).Remaining())
	})
}
