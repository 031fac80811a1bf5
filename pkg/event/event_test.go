package event

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishIsOrderedAndSynchronous(t *testing.T) {
	bus := New()
	var got []any

	bus.Subscribe("plugin.state", func(_ context.Context, data any) {
		got = append(got, data)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), "plugin.state", i)
	}

	require.Equal(t, []any{0, 1, 2, 3, 4}, got)
}

func TestBus_HandlersRunInSubscriptionOrder(t *testing.T) {
	bus := New()
	var order []string

	bus.Subscribe("x", func(context.Context, any) { order = append(order, "first") })
	bus.Subscribe("x", func(context.Context, any) { order = append(order, "second") })
	bus.Subscribe("y", func(context.Context, any) { order = append(order, "other") })

	bus.Publish(context.Background(), "x", nil)

	require.Equal(t, []string{"first", "second"}, order)
}

func TestBus_NilHandlerIgnored(t *testing.T) {
	bus := New()
	bus.Subscribe("x", nil)
	require.Empty(t, bus.handlers("x"))
	require.NotPanics(t, func() { bus.Publish(context.Background(), "x", 1) })
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0
	bus.Subscribe("x", func(context.Context, any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), "x", nil)
		}()
	}
	wg.Wait()

	require.Equal(t, 20, count)
}
