package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptionWarningEvent(t *testing.T) {
	meta := map[string]any{"custom": "value"}
	event := BuildOptionWarningEvent(ResolutionEventInput{
		ActorID:    " cli ",
		Option:     "lb_override",
		Message:    "'--lookback' N/A to STATIC approach; ignoring '--lb 30'",
		Provenance: "EXPLICIT",
		Value:      int64(30),
		Metadata:   meta,
		Run:        RunContext{RunID: "run-1", Schema: "attributes", Approach: "static"},
	})

	assert.Equal(t, VerbOptionWarning, event.Verb)
	assert.Equal(t, ObjectOption, event.ObjectType)
	assert.Equal(t, "lb_override", event.ObjectID)
	assert.Equal(t, "cli", event.ActorID)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "attributes", event.Schema)
	assert.Equal(t, "run-1", event.Metadata["run_id"])
	assert.Equal(t, "static", event.Metadata["approach"])
	assert.Equal(t, false, event.Metadata["grouped"])
	assert.Equal(t, int64(30), event.Metadata["value"])
	assert.Equal(t, "EXPLICIT", event.Metadata["provenance"])
	assert.Equal(t, "value", event.Metadata["custom"])

	_, touched := meta["option"]
	assert.False(t, touched)
}

func TestBuildRunEventsFallBackToRunID(t *testing.T) {
	event := BuildRunResolvedEvent(ResolutionEventInput{Run: RunContext{RunID: "run-7"}})
	assert.Equal(t, ObjectRun, event.ObjectType)
	assert.Equal(t, "run-7", event.ObjectID)

	event = BuildRunFailedEvent(ResolutionEventInput{})
	assert.Equal(t, ObjectRun, event.ObjectID)
}

func TestResolutionEventsReachHooks(t *testing.T) {
	capture := &CaptureHook{}
	err := Hooks{capture}.Notify(context.Background(), BuildOptionWarningEvent(ResolutionEventInput{
		Option:  "norm_before",
		Message: "ignored",
	}))
	require.NoError(t, err)
	require.Len(t, capture.Events, 1)
	assert.Equal(t, "norm_before", capture.Events[0].Metadata["option"])
}
