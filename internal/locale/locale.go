// Package locale renders user-facing notification text.
//
// The core never formats messages inline: it asks the Localizer for a
// message key in a locale, and locale preferences for one cycle travel in a
// read-only Snapshot so cycles stay independently testable.
package locale

import (
	"fmt"

	"golang.org/x/text/language"

	"mangawatch/internal/transport"
)

// Message keys understood by the catalogs.
const (
	KeyNewRelease  = "release.new"
	KeyReadOnline  = "release.read_online"
	KeyChannelHint = "channel.hint"
)

// DefaultTag applies when neither the user nor the server set a preference.
const DefaultTag = "en-US"

// Snapshot is the per-cycle, read-only view of locale preferences.
// It is loaded once per cycle from storage and passed into dispatch.
type Snapshot struct {
	Users   map[transport.UserID]string
	Servers map[transport.ServerID]string
}

func (s Snapshot) User(u transport.UserID) string { return s.Users[u] }

func (s Snapshot) Server(v transport.ServerID) string { return s.Servers[v] }

// Localizer maps (key, locale, args) to text. Unknown locales fall back to
// the default tag via language matching, unknown keys to the key itself so
// a missing catalog entry is visible rather than silent.
type Localizer struct {
	def      string
	tags     []language.Tag
	names    []string
	matcher  language.Matcher
	catalogs map[string]map[string]string
}

func New(defaultTag string) (*Localizer, error) {
	if defaultTag == "" {
		defaultTag = DefaultTag
	}
	if _, ok := catalogs[defaultTag]; !ok {
		return nil, fmt.Errorf("unsupported default locale %q", defaultTag)
	}

	l := &Localizer{def: defaultTag, catalogs: catalogs}

	// The default tag goes first: language.NewMatcher treats the first tag
	// as the fallback for no-match.
	l.names = append(l.names, defaultTag)
	for name := range catalogs {
		if name != defaultTag {
			l.names = append(l.names, name)
		}
	}
	for _, name := range l.names {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("catalog tag %q: %w", name, err)
		}
		l.tags = append(l.tags, tag)
	}
	l.matcher = language.NewMatcher(l.tags)
	return l, nil
}

// Supported lists the catalog tags, default first.
func (l *Localizer) Supported() []string {
	return append([]string(nil), l.names...)
}

// Resolve maps a stored preference to a supported catalog tag. Empty or
// unparseable preferences resolve to the default.
func (l *Localizer) Resolve(pref string) string {
	if pref == "" {
		return l.def
	}
	if _, ok := l.catalogs[pref]; ok {
		return pref
	}
	tag, err := language.Parse(pref)
	if err != nil {
		return l.def
	}
	_, idx, conf := l.matcher.Match(tag)
	if conf == language.No {
		return l.def
	}
	return l.names[idx]
}

// Render formats a catalog message. Args substitute fmt verbs in the
// catalog template.
func (l *Localizer) Render(key, locale string, args ...any) string {
	cat, ok := l.catalogs[l.Resolve(locale)]
	if !ok {
		cat = l.catalogs[l.def]
	}
	tmpl, ok := cat[key]
	if !ok {
		// Fall back to default catalog, then to the bare key.
		tmpl, ok = l.catalogs[l.def][key]
		if !ok {
			return key
		}
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
