// Package telegram implements the outbound message sink on top of the
// Telegram Bot API. A "server" is a configured community: one chat group
// per announcement channel, listed in the adapter config together with
// the channel used when no explicit binding exists.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"mangawatch/internal/transport"
	logx "mangawatch/pkg/logx"
)

type ServerEntry struct {
	ID             transport.ServerID
	DefaultChannel transport.ChannelID
	Channels       []transport.ChannelID
}

type Config struct {
	Token string
	// PollTimeout applies to the long-poll loop. Zero means 10s.
	PollTimeout time.Duration
	Servers     []ServerEntry
}

// Adapter is a transport.Sink backed by telebot. Server topology comes
// from config and is swappable at runtime via Reconfigure.
type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	mu      sync.RWMutex
	servers map[transport.ServerID]ServerEntry

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log, bot: b}
	a.Reconfigure(cfg.Servers)
	return a, nil
}

// Reconfigure swaps the server topology. Safe during dispatch; a cycle
// already in flight keeps its resolved views.
func (a *Adapter) Reconfigure(servers []ServerEntry) {
	m := make(map[transport.ServerID]ServerEntry, len(servers))
	for _, s := range servers {
		m[s.ID] = s
	}
	a.mu.Lock()
	a.servers = m
	a.mu.Unlock()
}

// Bot exposes the underlying telebot instance for command registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start runs the long-poll loop until ctx is cancelled. Telebot's Start
// blocks, so this is meant to run under a supervisor.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()

	a.log.Info("polling started")
	a.bot.Start()
	a.log.Info("polling stopped")

	a.runMu.Lock()
	a.running = false
	a.runMu.Unlock()
}

func (a *Adapter) SendToChannel(ctx context.Context, ch transport.ChannelID, text string) error {
	if err := a.send(ctx, int64(ch), text); err != nil {
		return classifyChannelErr(err)
	}
	return nil
}

func (a *Adapter) SendToUser(ctx context.Context, user transport.UserID, text string) error {
	if err := a.send(ctx, int64(user), text); err != nil {
		return classifyUserErr(err)
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	opt := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	for _, chunk := range splitText(text, textLimit) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if _, err := a.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// ResolveServer answers from the configured topology, then confirms the
// chat still exists on the platform.
func (a *Adapter) ResolveServer(ctx context.Context, server transport.ServerID) (transport.ServerInfo, error) {
	a.mu.RLock()
	entry, ok := a.servers[server]
	a.mu.RUnlock()
	if !ok {
		return transport.ServerInfo{}, transport.Classify(transport.ErrServerGone, errors.New("server not configured"))
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return transport.ServerInfo{}, ctx.Err()
		default:
		}
	}
	if _, err := a.bot.ChatByID(int64(server)); err != nil {
		if isGoneErr(err) {
			return transport.ServerInfo{}, transport.Classify(transport.ErrServerGone, err)
		}
		return transport.ServerInfo{}, err
	}
	return transport.ServerInfo{ID: entry.ID, DefaultChannel: entry.DefaultChannel}, nil
}

func (a *Adapter) ListTextChannels(ctx context.Context, server transport.ServerID) ([]transport.ChannelID, error) {
	a.mu.RLock()
	entry, ok := a.servers[server]
	a.mu.RUnlock()
	if !ok {
		return nil, transport.Classify(transport.ErrServerGone, errors.New("server not configured"))
	}
	channels := append([]transport.ChannelID(nil), entry.Channels...)
	if len(channels) == 0 {
		channels = []transport.ChannelID{entry.DefaultChannel}
	}
	return channels, nil
}

// Mention renders a text-mention link; Telegram notifies the user even
// without a username.
func (a *Adapter) Mention(user transport.UserID) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">user</a>`, int64(user))
}

// Everyone returns the broadcast marker. Telegram has no native
// @everyone; "@all" is the convention group bots respond to.
func (a *Adapter) Everyone() string { return "@all" }

// Telegram Bot API errors carry no stable codes through telebot across
// versions, so classification matches description substrings.
func classifyUserErr(err error) error {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"blocked by the user",
		"user is deactivated",
		"can't initiate conversation",
		"chat not found",
	} {
		if strings.Contains(msg, s) {
			return transport.Classify(transport.ErrRecipientUnreachable, err)
		}
	}
	return err
}

func classifyChannelErr(err error) error {
	msg := strings.ToLower(err.Error())
	if isGoneMsg(msg) {
		return transport.Classify(transport.ErrChannelUnavailable, err)
	}
	for _, s := range []string{
		"not enough rights",
		"have no rights",
		"chat_write_forbidden",
		"topic_closed",
	} {
		if strings.Contains(msg, s) {
			return transport.Classify(transport.ErrChannelUnavailable, err)
		}
	}
	return err
}

func isGoneErr(err error) bool { return isGoneMsg(strings.ToLower(err.Error())) }

func isGoneMsg(msg string) bool {
	for _, s := range []string{
		"chat not found",
		"bot was kicked",
		"bot is not a member",
		"chat was deleted",
		"group chat was upgraded",
		"forbidden",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts. It
// prefers newline boundaries and (best-effort) avoids splitting inside
// an HTML tag.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		// Don't leave a dangling open tag at the chunk border.
		if end < len(rs) {
			lastOpen := -1
			lastClose := -1
			for i := start; i < end; i++ {
				if rs[i] == '<' {
					lastOpen = i
				} else if rs[i] == '>' {
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
