package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventKind names the setting that changed.
type EventKind string

const (
	URLChanged     EventKind = "url_changed"
	KeyChanged     EventKind = "key_changed"
	TimeoutChanged EventKind = "timeout_changed"
)

// Event is delivered to subscribers once per changed setting after a Reload.
type Event struct {
	Kind EventKind
	Old  Settings
	New  Settings
}

// Source holds the current Settings and publishes changes. Source is safe for concurrent use.
type Source struct {
	path   string
	logger *slog.Logger

	mu          sync.RWMutex
	settings    Settings
	initialized bool
	subs        map[int]func(Event)
	nextSubID   int

	watchOnce sync.Once
}

// NewSource returns a Source reading from path. Call Load before use.
func NewSource(path string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		path:   path,
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
}

// Path returns the config file path.
func (s *Source) Path() string {
	return s.path
}

// Current returns the latest settings.
func (s *Source) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Initialized reports whether the first Load has completed.
func (s *Source) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Load performs the first read and marks the source initialized. It does not notify subscribers.
func (s *Source) Load() error {
	settings, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.initialized = true
	s.mu.Unlock()
	if settings.APIKey != "" {
		s.logger.Info("config: initialised with key", "api_key", RedactKey(settings.APIKey), "api_url", settings.APIURL)
	} else {
		s.logger.Info("config: initialised with no key", "api_url", settings.APIURL)
	}
	return nil
}

// Reload re-reads the configuration and notifies subscribers of each changed setting.
// On error the previous settings are kept.
func (s *Source) Reload() error {
	next, err := Load(s.path)
	if err != nil {
		s.logger.Warn("config: reload failed, keeping previous settings", "path", s.path, "error", err)
		return err
	}
	s.mu.Lock()
	prev := s.settings
	s.settings = next
	s.initialized = true
	subs := make([]func(Event), 0, len(s.subs))
	for id := 0; id < s.nextSubID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	events := diff(prev, next)
	for _, ev := range events {
		switch ev.Kind {
		case URLChanged:
			s.logger.Info("config: URL changed", "api_url", next.APIURL)
		case KeyChanged:
			s.logger.Info("config: key changed", "api_key", RedactKey(next.APIKey))
		case TimeoutChanged:
			s.logger.Info("config: pulse timeout changed", "pulse_timeout", next.PulseTimeout)
		}
		for _, fn := range subs {
			fn(ev)
		}
	}
	return nil
}

func diff(prev, next Settings) []Event {
	var events []Event
	if prev.APIURL != next.APIURL {
		events = append(events, Event{Kind: URLChanged, Old: prev, New: next})
	}
	if prev.APIKey != next.APIKey {
		events = append(events, Event{Kind: KeyChanged, Old: prev, New: next})
	}
	if prev.PulseTimeout != next.PulseTimeout {
		events = append(events, Event{Kind: TimeoutChanged, Old: prev, New: next})
	}
	return events
}

// Subscribe registers fn for change events, called in subscription order on the reloading goroutine.
// The returned function removes the subscription.
func (s *Source) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Watch reloads whenever the config file is written. Only the first call has an effect.
func (s *Source) Watch() {
	if s.path == "" {
		return
	}
	s.watchOnce.Do(func() {
		v := newViper(s.path)
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			s.logger.Debug("config: file changed", "path", e.Name, "op", e.Op.String())
			_ = s.Reload()
		})
		v.WatchConfig()
	})
}
