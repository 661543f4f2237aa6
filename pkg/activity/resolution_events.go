package activity

import (
	"strings"
	"time"
)

// Verbs and object types emitted for resolution runs.
const (
	VerbOptionWarning = "options.warning"
	VerbRunResolved   = "options.run.resolved"
	VerbRunFailed     = "options.run.failed"

	ObjectOption = "option"
	ObjectRun    = "options.run"
)

// RunContext identifies the resolution run an event belongs to.
type RunContext struct {
	RunID    string
	Schema   string
	Approach string
	Grouped  bool
}

// ResolutionEventInput describes the common fields for resolution events.
type ResolutionEventInput struct {
	ActorID    string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	Option     string
	Value      any
	Provenance string
	Message    string
	Run        RunContext
	OccurredAt time.Time
}

// BuildOptionWarningEvent constructs an event for an explicit value that was
// dropped during resolution.
func BuildOptionWarningEvent(input ResolutionEventInput) Event {
	return buildResolutionEvent(VerbOptionWarning, ObjectOption, input)
}

// BuildRunResolvedEvent constructs an event for a completed resolution run.
func BuildRunResolvedEvent(input ResolutionEventInput) Event {
	return buildResolutionEvent(VerbRunResolved, ObjectRun, input)
}

// BuildRunFailedEvent constructs an event for a rejected resolution run.
func BuildRunFailedEvent(input ResolutionEventInput) Event {
	return buildResolutionEvent(VerbRunFailed, ObjectRun, input)
}

func buildResolutionEvent(verb, objectType string, input ResolutionEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Option != "" {
		metadata = ensureMetadata(metadata)
		metadata["option"] = input.Option
	}
	if input.Message != "" {
		metadata = ensureMetadata(metadata)
		metadata["message"] = input.Message
	}
	if input.Provenance != "" {
		metadata = ensureMetadata(metadata)
		metadata["provenance"] = input.Provenance
	}
	if input.Value != nil {
		metadata = ensureMetadata(metadata)
		metadata["value"] = input.Value
	}
	if input.Run.RunID != "" {
		metadata = ensureMetadata(metadata)
		metadata["run_id"] = input.Run.RunID
		metadata["grouped"] = input.Run.Grouped
		if input.Run.Schema != "" {
			metadata["schema"] = input.Run.Schema
		}
		if input.Run.Approach != "" {
			metadata["approach"] = input.Run.Approach
		}
	}

	objectID := strings.TrimSpace(input.ObjectID)
	if objectID == "" && objectType == ObjectOption {
		objectID = strings.TrimSpace(input.Option)
	}
	if objectID == "" {
		objectID = strings.TrimSpace(input.Run.RunID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		RunID:      strings.TrimSpace(input.Run.RunID),
		Schema:     strings.TrimSpace(input.Run.Schema),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
