package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	meta := map[string]any{"message": "ignored"}
	event := Event{
		Verb:       " options.warning ",
		ActorID:    " cli ",
		ObjectType: " option ",
		ObjectID:   " lb_override ",
		RunID:      " run-1 ",
		Schema:     " attributes ",
		Metadata:   meta,
	}

	got := NormalizeEvent(event)
	assert.Equal(t, "options.warning", got.Verb)
	assert.Equal(t, "cli", got.ActorID)
	assert.Equal(t, "option", got.ObjectType)
	assert.Equal(t, "lb_override", got.ObjectID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "attributes", got.Schema)
	assert.False(t, got.OccurredAt.IsZero())

	got.Metadata["message"] = "changed"
	assert.Equal(t, "ignored", meta["message"])
}

func TestHooksDropUnroutableEvents(t *testing.T) {
	capture := &CaptureHook{}
	require.NoError(t, Hooks{capture}.Notify(context.Background(), Event{Verb: VerbRunResolved}))
	assert.Empty(t, capture.Events)
}

func TestHooksFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	var sawContext bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			sawContext = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return errors.New("sink one down") }),
		nil,
		HookFunc(func(context.Context, Event) error { return errors.New("sink two down") }),
	}

	err := hooks.Notify(nil, Event{Verb: VerbOptionWarning, ObjectType: ObjectOption, ObjectID: "tau"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink one down")
	assert.Contains(t, err.Error(), "sink two down")
	assert.True(t, sawContext)
	assert.Equal(t, []string{VerbOptionWarning}, capture.Verbs())
}

func TestEmitterDefaults(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: VerbRunResolved, ObjectType: ObjectRun, ObjectID: "run-1"}

	disabled := NewEmitter(Hooks{capture}, Config{})
	assert.False(t, disabled.Enabled())
	require.NoError(t, disabled.Emit(context.Background(), event))
	assert.Empty(t, capture.Events)

	assert.False(t, NewEmitter(Hooks{nil}, Config{Enabled: true}).Enabled())

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, ActorID: "cli"})
	require.True(t, enabled.Enabled())
	require.NoError(t, enabled.Emit(context.Background(), event))
	require.Len(t, capture.Events, 1)
	assert.Equal(t, DefaultChannel, capture.Events[0].Channel)
	assert.Equal(t, "cli", capture.Events[0].ActorID)
}

func TestEmitterKeepsEventFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "batch", ActorID: "cli"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, emitter.Emit(context.Background(), Event{
		Verb:       VerbRunFailed,
		ActorID:    "watcher",
		ObjectType: ObjectRun,
		ObjectID:   "run-2",
		Channel:    "watch",
		OccurredAt: at,
	}))
	got := capture.Events[0]
	assert.Equal(t, "watch", got.Channel)
	assert.Equal(t, "watcher", got.ActorID)
	assert.Equal(t, at, got.OccurredAt)
}
