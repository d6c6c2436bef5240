package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitFiresInRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []int
	bus.Register(OnBlockStart, func(payload any) { order = append(order, 1) })
	bus.Register(OnBlockStart, func(payload any) { order = append(order, 2) })
	bus.Register(OnAcceptedBlock, func(payload any) { order = append(order, 99) })

	bus.Emit(OnBlockStart, uint32(7))
	require.Equal(t, []int{1, 2}, order)
}

func TestEmitDeliversPayload(t *testing.T) {
	bus := NewBus(nil)

	var got any
	bus.Register(OnIrreversibleBlock, func(payload any) { got = payload })
	bus.Emit(OnIrreversibleBlock, "block-state")
	require.Equal(t, "block-state", got)
}

func TestPanickingSubscriberIsSwallowed(t *testing.T) {
	bus := NewBus(nil)

	var reached bool
	bus.Register(OnAppliedTransaction, func(payload any) { panic("subscriber bug") })
	bus.Register(OnAppliedTransaction, func(payload any) { reached = true })

	require.NotPanics(t, func() { bus.Emit(OnAppliedTransaction, nil) })
	require.True(t, reached, "a panicking subscriber must not starve later ones")
}

func TestEmitWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewBus(nil)
	require.NotPanics(t, func() { bus.Emit(OnBadAlloc, nil) })
}
