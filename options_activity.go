package opts

import "github.com/jyscao/tail-risk/pkg/activity"

type activityConfig struct {
	hooks   activity.Hooks
	channel string
	actor   string
}

// WithActivityHooks attaches hooks that receive warning and run events.
// Nil entries are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	var live activity.Hooks
	for _, hook := range hooks {
		if hook != nil {
			live = append(live, hook)
		}
	}
	return func(cfg *engineConfig) {
		cfg.activity.hooks = live
	}
}

// WithActivityChannel names the channel stamped on emitted events.
// activity.DefaultChannel is used otherwise.
func WithActivityChannel(channel string) Option {
	return func(cfg *engineConfig) {
		cfg.activity.channel = channel
	}
}

// WithActivityActor sets the actor id stamped on emitted events. Sinks that
// key activity by UUID expect a UUID here.
func WithActivityActor(actor string) Option {
	return func(cfg *engineConfig) {
		cfg.activity.actor = actor
	}
}

func (c activityConfig) emitter() *activity.Emitter {
	return activity.NewEmitter(c.hooks, activity.Config{
		Enabled: true,
		Channel: c.channel,
		ActorID: c.actor,
	})
}
