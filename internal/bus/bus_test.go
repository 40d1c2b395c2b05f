package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeAndUnsubscribe(t *testing.T) {
	b := New()

	var got []Event
	cancel := b.Subscribe(func(ev Event) { got = append(got, ev) })

	b.PublishKinds(KindProduct)
	require.Len(t, got, 1)
	require.True(t, got[0].Touches(KindProduct))
	require.False(t, got[0].Touches(KindInvoice))

	cancel()
	b.PublishKinds(KindInvoice)
	require.Len(t, got, 1)
}

func TestPublishOrderPreserved(t *testing.T) {
	b := New()

	var first, second []EntityKind
	b.Subscribe(func(ev Event) { first = append(first, ev.Kinds...) })
	b.Subscribe(func(ev Event) { second = append(second, ev.Kinds...) })

	b.PublishKinds(KindProduct)
	b.PublishKinds(KindMovement)
	b.PublishKinds(KindInvoice)

	want := []EntityKind{KindProduct, KindMovement, KindInvoice}
	require.Equal(t, want, first)
	require.Equal(t, want, second)
}

func TestResetTouchesEverything(t *testing.T) {
	b := New()

	var got Event
	b.Subscribe(func(ev Event) { got = ev })

	b.PublishReset()
	require.True(t, got.Reset)
	for _, kind := range AllKinds() {
		require.True(t, got.Touches(kind))
	}
}
