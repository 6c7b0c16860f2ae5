package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFireStopsAtFirstHandler(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { _ = EventSystemShutdown() })

	var calls []string
	EventRegister(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "first")
		se := ctx.Data.(*SystemEvent)
		return se.WindowWidth == 0
	})
	EventRegister(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		calls = append(calls, "second")
		return true
	})

	handled := EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{WindowWidth: 800, WindowHeight: 600}})
	assert.True(t, handled)
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	EventFire(EventContext{Type: EVENT_CODE_RESIZED, Data: &SystemEvent{}})
	assert.Equal(t, []string{"first"}, calls)
}

func TestInputProcessKeyFiresOnTransitionOnly(t *testing.T) {
	require.True(t, EventSystemInitialize())
	t.Cleanup(func() { _ = EventSystemShutdown() })
	require.NoError(t, InputInitialize())
	t.Cleanup(func() { _ = InputShutdown() })

	pressed := 0
	EventRegister(EVENT_CODE_KEY_PRESSED, func(ctx EventContext) bool {
		pressed++
		return true
	})

	InputProcessKey(KEY_ESCAPE, true)
	InputProcessKey(KEY_ESCAPE, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, InputIsKeyDown(KEY_ESCAPE))
	assert.False(t, InputWasKeyDown(KEY_ESCAPE))

	InputUpdate()
	assert.True(t, InputWasKeyDown(KEY_ESCAPE))
}
