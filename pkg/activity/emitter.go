package activity

import (
	"context"
	"strings"
)

// DefaultChannel is stamped on events that do not name a channel.
const DefaultChannel = "resolution"

// Config sets the emitter defaults.
type Config struct {
	Enabled bool
	Channel string
	ActorID string
}

// Emitter sends resolution events to hooks after filling in the configured
// channel and actor.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	actor   string
}

func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	var live Hooks
	for _, hook := range hooks {
		if hook != nil {
			live = append(live, hook)
		}
	}
	return &Emitter{
		hooks:   live,
		enabled: cfg.Enabled && len(live) > 0,
		channel: channel,
		actor:   strings.TrimSpace(cfg.ActorID),
	}
}

func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit is a no-op on a disabled emitter.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if strings.TrimSpace(event.ActorID) == "" {
		event.ActorID = e.actor
	}
	return e.hooks.Notify(ctx, event)
}
