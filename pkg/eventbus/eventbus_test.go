package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishOrder(t *testing.T) {
	b := New()

	var got []int
	b.Subscribe("tick", func(payload any) {
		got = append(got, payload.(int))
	})

	b.Publish("tick", 1)
	b.Publish("tick", 2)
	b.Publish("tick", 3)

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPublishUnknownTopic(t *testing.T) {
	b := New()
	b.Publish("nobody-listens", struct{}{})
}

func TestCloseDropsSubscribers(t *testing.T) {
	b := New()

	called := false
	b.Subscribe("tick", func(any) { called = true })
	b.Close()

	b.Publish("tick", 1)
	assert.False(t, called, "handler must not fire after close")

	b.Subscribe("tick", func(any) { called = true })
	b.Publish("tick", 1)
	assert.False(t, called, "subscribe after close must be a no-op")
}
