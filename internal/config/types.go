package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Crawl    CrawlConfig    `json:"crawl"`
	Dispatch DispatchConfig `json:"dispatch"`
	Locale   LocaleConfig   `json:"locale,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// Servers lists the chats the bot serves. Each server carries the
	// fallback channel used when no explicit binding is stored, plus the
	// full channel list considered during delivery fallback.
	Servers []ServerConfig `json:"servers"`
}

type ServerConfig struct {
	ID             int64   `json:"id"`
	DefaultChannel int64   `json:"default_channel"`
	Channels       []int64 `json:"channels,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Ops     LoggingOps  `json:"ops"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingOps mirrors warnings and errors into an operator chat.
type LoggingOps struct {
	Enabled    bool   `json:"enabled"`
	Channel    int64  `json:"channel"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./mangawatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CrawlConfig controls the periodic crawl cycle.
//
// Schedule accepts either a cron expression ("*/30 * * * *") or a Go
// duration string ("30m", shorthand for @every).
type CrawlConfig struct {
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`

	Sites []SiteConfig `json:"sites"`
}

type SiteConfig struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	FeedURL string `json:"feed_url"`
	// ReadOnlineURL is a template with a {id} placeholder; when set,
	// notifications for this site carry a read-online link.
	ReadOnlineURL string `json:"read_online_url,omitempty"`
	// Timeout is a Go duration string for one fetch. Empty means default.
	Timeout string `json:"timeout,omitempty"`
}

type DispatchConfig struct {
	Workers        int    `json:"workers,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	ChannelCommand string `json:"channel_command,omitempty"`
}

type LocaleConfig struct {
	Default string `json:"default,omitempty"`
}

// Validate checks the parts of the config that can be judged without
// touching the network. It runs on load and before every reload commit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	seenServers := map[int64]bool{}
	for i, s := range c.Telegram.Servers {
		if s.ID == 0 {
			return fmt.Errorf("telegram.servers[%d]: id is required", i)
		}
		if seenServers[s.ID] {
			return fmt.Errorf("telegram.servers[%d]: duplicate server id %d", i, s.ID)
		}
		seenServers[s.ID] = true
		if s.DefaultChannel == 0 {
			return fmt.Errorf("telegram.servers[%d]: default_channel is required", i)
		}
	}

	if strings.TrimSpace(c.Crawl.Schedule) == "" {
		return errors.New("crawl.schedule is required")
	}
	seenSites := map[string]bool{}
	for i, s := range c.Crawl.Sites {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("crawl.sites[%d]: id is required", i)
		}
		if seenSites[id] {
			return fmt.Errorf("crawl.sites[%d]: duplicate site id %q", i, id)
		}
		seenSites[id] = true
		if strings.TrimSpace(s.FeedURL) == "" {
			return fmt.Errorf("crawl.sites[%d]: feed_url is required", i)
		}
		if _, err := ParseDurationField(fmt.Sprintf("crawl.sites[%d].timeout", i), s.Timeout); err != nil {
			return err
		}
	}

	if c.Dispatch.Workers < 0 {
		return errors.New("dispatch.workers must be >= 0")
	}
	if c.Dispatch.RatePerSec < 0 {
		return errors.New("dispatch.rate_per_sec must be >= 0")
	}
	return nil
}
