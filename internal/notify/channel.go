package notify

import (
	"context"
	"errors"

	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

// channelState drives the fallback chain for server-targeted messages.
// The chain is strictly linear: exactly one channel receives the message
// on success, and each attempt is resolved before the next one starts.
type channelState int

const (
	stateTryBinding channelState = iota
	stateTryDefault
	stateTryRemaining
	stateDropped
)

var errUndeliverable = errors.New("no channel accepted the message")

// ChannelResolver picks the delivery channel for one server message.
//
// Order: the admin-configured binding first; without a binding, the
// server's default channel with the configuration hint appended; after a
// delivery failure, every remaining text channel in the platform's stable
// order. When everything fails the event is dropped - there is no queue,
// losing the message this cycle is the accepted policy.
type ChannelResolver struct {
	sink  transport.Sink
	store storage.Store
	log   logx.Logger
}

func NewChannelResolver(sink transport.Sink, store storage.Store, log logx.Logger) *ChannelResolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ChannelResolver{sink: sink, store: store, log: log}
}

// Deliver sends text to one channel of the server. The hint is appended
// only on the no-binding default-channel path (and carried into fallback
// attempts that follow it, matching what the failed attempt would have
// said). Returns the accepting channel id.
func (r *ChannelResolver) Deliver(ctx context.Context, server transport.ServerID, info transport.ServerInfo, text, hint string) (transport.ChannelID, error) {
	var (
		msg   string
		tried = map[transport.ChannelID]bool{}
		state = stateTryBinding
	)

	for {
		switch state {
		case stateTryBinding:
			bound, ok, err := r.store.ChannelBinding(ctx, server)
			if err != nil {
				r.log.Warn("channel binding lookup failed",
					logx.Int64("server", int64(server)), logx.Err(err))
				ok = false
			}
			if !ok {
				state = stateTryDefault
				continue
			}
			msg = text
			if err := r.sink.SendToChannel(ctx, bound, msg); err == nil {
				return bound, nil
			} else {
				r.log.Debug("bound channel rejected message",
					logx.Int64("server", int64(server)),
					logx.Int64("channel", int64(bound)),
					logx.Err(err))
				tried[bound] = true
				state = stateTryRemaining
			}

		case stateTryDefault:
			msg = text
			if hint != "" {
				msg += "\n\n" + hint
			}
			if err := r.sink.SendToChannel(ctx, info.DefaultChannel, msg); err == nil {
				return info.DefaultChannel, nil
			} else {
				r.log.Debug("default channel rejected message",
					logx.Int64("server", int64(server)),
					logx.Int64("channel", int64(info.DefaultChannel)),
					logx.Err(err))
				tried[info.DefaultChannel] = true
				state = stateTryRemaining
			}

		case stateTryRemaining:
			channels, err := r.sink.ListTextChannels(ctx, server)
			if err != nil {
				r.log.Warn("listing text channels failed",
					logx.Int64("server", int64(server)), logx.Err(err))
				state = stateDropped
				continue
			}
			for _, ch := range channels {
				if tried[ch] {
					continue
				}
				if err := r.sink.SendToChannel(ctx, ch, msg); err == nil {
					return ch, nil
				}
				tried[ch] = true
			}
			state = stateDropped

		case stateDropped:
			return 0, transport.Classify(transport.ErrChannelUnavailable, errUndeliverable)
		}
	}
}
