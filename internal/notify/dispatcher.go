package notify

import (
	"context"
	"errors"
	"strings"

	"mangawatch/internal/locale"
	"mangawatch/internal/release"
	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

// Config tunes outbound dispatch.
type Config struct {
	// RatePerSec caps sends across all tiers. 0 means the default (10).
	RatePerSec int

	// ChannelCommand is the admin command named in the "no channel
	// configured" hint. Empty means the default.
	ChannelCommand string
}

const defaultChannelCommand = "/channel"

// Dispatcher turns one change event into outbound messages for all three
// audience tiers. It never returns an error: every failure mode is either
// absorbed by policy (unreachable recipients, undeliverable servers) or
// recorded in the Outcome, and the item's stored release label advances
// regardless - a stuck label would resend the same stale notification on
// every future cycle once delivery recovers.
type Dispatcher struct {
	sink     transport.Sink
	store    storage.Store
	loc      *locale.Localizer
	sites    *release.Registry
	channels *ChannelResolver
	log      logx.Logger

	channelCommand string
}

func NewDispatcher(cfg Config, sink transport.Sink, store storage.Store, loc *locale.Localizer, sites *release.Registry, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	limited := RateLimited(sink, cfg.RatePerSec)
	cmd := cfg.ChannelCommand
	if cmd == "" {
		cmd = defaultChannelCommand
	}
	return &Dispatcher{
		sink:           limited,
		store:          store,
		loc:            loc,
		sites:          sites,
		channels:       NewChannelResolver(limited, store, log),
		log:            log,
		channelCommand: cmd,
	}
}

// Dispatch fans one change event out to its subscribers.
//
// Tier order matches delivery expectations: server broadcasts, then group
// mentions (one message per server, members coalesced), then private
// messages. A server that the platform no longer resolves is purged from
// the subscription store exactly once per cycle and skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev release.ChangeEvent, cycle *CycleState) Outcome {
	out := Outcome{Item: ev.Item.Key, Release: ev.NewRelease}

	site, ok := d.sites.Get(ev.Item.Key.Site)
	if !ok {
		// Unknown descriptor: fall back to the raw site id as display name.
		site = release.Site{ID: ev.Item.Key.Site, Name: string(ev.Item.Key.Site)}
	}

	subs, err := d.store.Subscriptions(ctx, ev.Item.ID)
	if err != nil {
		d.log.Error("subscription lookup failed",
			logx.String("site", string(ev.Item.Key.Site)),
			logx.String("item", ev.Item.Key.SiteItemID),
			logx.Err(err))
		subs = storage.Subscriptions{}
	}

	body := func(tag string) string {
		text := d.loc.Render(locale.KeyNewRelease, tag, ev.Item.Name, ev.NewRelease, site.Name)
		if site.HasReadOnline() {
			text += "\n" + d.loc.Render(locale.KeyReadOnline, tag, site.ReadOnlineLink(ev.Item.Key.SiteItemID))
		}
		return text
	}

	// Per-event server resolution cache. A gone server is purged once per
	// cycle and skipped for every message that would have targeted it.
	infos := map[transport.ServerID]transport.ServerInfo{}
	skip := map[transport.ServerID]bool{}
	resolve := func(server transport.ServerID) (transport.ServerInfo, bool) {
		if skip[server] || cycle.wasPurged(server) {
			return transport.ServerInfo{}, false
		}
		if info, ok := infos[server]; ok {
			return info, true
		}
		info, err := d.sink.ResolveServer(ctx, server)
		if err == nil {
			infos[server] = info
			return info, true
		}
		skip[server] = true
		if errors.Is(err, transport.ErrServerGone) {
			if cycle.markPurged(server) {
				if perr := d.store.RemoveServerSubscriptions(ctx, server); perr != nil {
					d.log.Error("subscription purge failed",
						logx.Int64("server", int64(server)), logx.Err(perr))
				} else {
					out.Purged = append(out.Purged, server)
					d.log.Warn("server gone; subscriptions purged",
						logx.Int64("server", int64(server)))
				}
			}
			return transport.ServerInfo{}, false
		}
		d.log.Warn("server resolution failed",
			logx.Int64("server", int64(server)), logx.Err(err))
		return transport.ServerInfo{}, false
	}

	sendServer := func(server transport.ServerID, prefix string) {
		info, ok := resolve(server)
		if !ok {
			return
		}
		tag := d.loc.Resolve(cycle.Locales.Server(server))
		text := prefix + "\n" + body(tag)
		hint := d.loc.Render(locale.KeyChannelHint, tag, d.channelCommand)
		if _, err := d.channels.Deliver(ctx, server, info, text, hint); err != nil {
			out.Dropped++
			d.log.Warn("event undeliverable for server",
				logx.Int64("server", int64(server)),
				logx.String("item", ev.Item.Name),
				logx.Err(err))
			return
		}
		out.Sent++
	}

	// Tier 1: whole-server broadcasts.
	for _, server := range subs.Servers {
		sendServer(server, d.sink.Everyone())
	}

	// Tier 2: group mentions, coalesced to one message per server.
	var order []transport.ServerID
	members := map[transport.ServerID][]transport.UserID{}
	for _, g := range subs.Group {
		if _, seen := members[g.Server]; !seen {
			order = append(order, g.Server)
		}
		members[g.Server] = append(members[g.Server], g.User)
	}
	for _, server := range order {
		tokens := make([]string, 0, len(members[server]))
		for _, u := range members[server] {
			tokens = append(tokens, d.sink.Mention(u))
		}
		sendServer(server, strings.Join(tokens, ", "))
	}

	// Tier 3: private messages. No channel fallback here; an unreachable
	// recipient (blocked the bot, deleted account) is normal and silent.
	for _, user := range subs.Private {
		tag := d.loc.Resolve(cycle.Locales.User(user))
		err := d.sink.SendToUser(ctx, user, body(tag))
		switch {
		case err == nil:
			out.Sent++
		case errors.Is(err, transport.ErrRecipientUnreachable):
			out.Swallowed++
		default:
			out.Failed++
			d.log.Warn("private send failed",
				logx.Int64("user", int64(user)),
				logx.String("item", ev.Item.Name),
				logx.Err(err))
		}
	}

	// State advances once all attempts were issued, delivered or not.
	if err := d.store.UpdateLastRelease(ctx, ev.Item.ID, ev.NewRelease); err != nil {
		d.log.Error("release label update failed",
			logx.String("item", ev.Item.Name),
			logx.String("release", ev.NewRelease),
			logx.Err(err))
	} else {
		out.StateAdvanced = true
	}

	return out
}
