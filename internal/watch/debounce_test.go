package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerEmitsSingleCreateAfterCreateThenModify(t *testing.T) {
	var mu sync.Mutex
	var emitted []Event

	d := NewDebouncer(20*time.Millisecond, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, e)
	})

	d.Push(Event{Path: "a.go", Kind: EventCreate})
	d.Push(Event{Path: "a.go", Kind: EventModify})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, EventCreate, emitted[0].Kind)
}

func TestDebouncerDeleteClearsPendingAndWins(t *testing.T) {
	var mu sync.Mutex
	var emitted []Event

	d := NewDebouncer(20*time.Millisecond, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, e)
	})

	d.Push(Event{Path: "a.go", Kind: EventModify})
	d.Push(Event{Path: "a.go", Kind: EventDelete})
	d.Push(Event{Path: "a.go", Kind: EventCreate})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, EventCreate, emitted[0].Kind)
}

func TestDebouncerStopSuppressesEmit(t *testing.T) {
	var mu sync.Mutex
	emitted := 0

	d := NewDebouncer(20*time.Millisecond, func(Event) {
		mu.Lock()
		defer mu.Unlock()
		emitted++
	})
	d.Push(Event{Path: "a.go", Kind: EventModify})
	d.Stop()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, emitted)
}
