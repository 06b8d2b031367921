package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ScheduleKind describes the normalized kind of a schedule string: either
// a cron expression (robfig/cron) or a fixed interval.
type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
)

// Schedule is a parsed crawl schedule.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/30 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "30m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes: "cron:" forces cron parsing, "every:" forces interval
// parsing.
type Schedule struct {
	Kind  ScheduleKind
	Cron  string
	Every time.Duration
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Schedule{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return Schedule{Kind: ScheduleCron, Cron: expr}, nil
	}
	if strings.HasPrefix(low, "every:") {
		d, err := parseInterval(strings.TrimSpace(s[len("every:"):]))
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: ScheduleInterval, Every: d}, nil
	}

	// Any whitespace or leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Schedule{Kind: ScheduleCron, Cron: s}, nil
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: ScheduleInterval, Every: d}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{Kind: ScheduleInterval, Every: d}, nil
	}

	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/30 * * * *', HH:MM like '02:30', or duration like '30m')",
		raw,
	)
}

func parseInterval(v string) (time.Duration, error) {
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		return parseHHMM(v)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
