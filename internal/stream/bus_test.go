package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Feature: tradedesk, Property 9: Bus delivers every event in order despite panicking listeners
func TestProperty_BusDeliversInOrderDespitePanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("non-panicking listeners receive all events in publish order", prop.ForAll(
		func(events []int, listenerCount int, panicMask uint8) bool {
			bus := NewBus[int]("prop", zerolog.Nop())

			received := make([][]int, listenerCount)
			for i := 0; i < listenerCount; i++ {
				idx := i
				panics := panicMask&(1<<uint(i)) != 0
				bus.Subscribe(func(e int) {
					if panics {
						panic("listener failure")
					}
					received[idx] = append(received[idx], e)
				})
			}

			for _, e := range events {
				bus.Publish(e)
			}

			for i := 0; i < listenerCount; i++ {
				if panicMask&(1<<uint(i)) != 0 {
					continue
				}
				if len(received[i]) != len(events) {
					return false
				}
				for j := range events {
					if received[i][j] != events[j] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
		gen.IntRange(1, 8),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus[string]("test", zerolog.Nop())

	var a, b []string
	unsubA := bus.Subscribe(func(e string) { a = append(a, e) })
	bus.Subscribe(func(e string) { b = append(b, e) })
	require.Equal(t, 2, bus.Len())

	bus.Publish("first")
	unsubA()
	unsubA() // idempotent
	bus.Publish("second")

	assert.Equal(t, []string{"first"}, a)
	assert.Equal(t, []string{"first", "second"}, b)
	assert.Equal(t, 1, bus.Len())

	bus.Clear()
	assert.Equal(t, 0, bus.Len())
	bus.Publish("third")
	assert.Equal(t, []string{"first", "second"}, b)
}

func TestBusListenerMayUnsubscribeDuringDelivery(t *testing.T) {
	bus := NewBus[int]("test", zerolog.Nop())

	var calls int
	var unsub func()
	unsub = bus.Subscribe(func(int) {
		calls++
		unsub()
	})

	bus.Publish(1)
	bus.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestBusConcurrentPublishersAreSerialized(t *testing.T) {
	bus := NewBus[int]("test", zerolog.Nop())

	var active, maxActive int
	var mu sync.Mutex
	bus.Subscribe(func(int) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			bus.Publish(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}
