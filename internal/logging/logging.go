// Package logging builds the daemon's slog.Logger: a terminal handler on stderr,
// plus the systemd journal when running as a systemd service.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
	// Writer receives terminal output; defaults to os.Stderr.
	Writer io.Writer
	// Journal forces the journal handler on (true) or off (false); nil auto-detects systemd.
	Journal *bool
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New returns a logger fanning out to every enabled handler, and the LevelVar controlling it.
func New(opts Options) (*slog.Logger, *slog.LevelVar, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var terminal slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		terminal = slog.NewJSONHandler(w, handlerOpts)
	} else {
		terminal = slog.NewTextHandler(w, handlerOpts)
	}

	systemd := isSystemdService()
	useJournal := systemd
	if opts.Journal != nil {
		useJournal = *opts.Journal
	}

	var handlers []slog.Handler
	// Under systemd stderr already lands in the journal.
	if !systemd || !useJournal {
		handlers = append(handlers, terminal)
	}
	if useJournal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "logging: systemd journal unavailable", 0)
			record.Add("error", err)
			_ = terminal.Handle(context.Background(), record)
			if len(handlers) == 0 {
				handlers = append(handlers, terminal)
			}
		} else {
			handlers = append(handlers, journal)
		}
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), level, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), level, nil
}

// toJournalKey converts an attribute key to a valid journal field name.
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

func isSystemdService() bool {
	if os.Getenv("JOURNAL_STREAM") == "" {
		return false
	}
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service") || strings.HasSuffix(parts[2], ".service")
}
