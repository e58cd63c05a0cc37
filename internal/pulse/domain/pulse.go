// Package domain holds the pulse model: per-language XP counts and their wire form.
package domain

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// CodedAtLayout is ISO-8601 with second resolution and a numeric UTC offset (never "Z").
const CodedAtLayout = "2006-01-02T15:04:05-07:00"

var (
	// ErrSealed is returned when adding XP to a pulse that has already been serialized.
	ErrSealed = errors.New("pulse: sealed")
	// ErrInvalidAmount is returned for XP amounts below 1.
	ErrInvalidAmount = errors.New("pulse: amount must be at least 1")
	// ErrEmptyLanguage is returned when the language label is empty.
	ErrEmptyLanguage = errors.New("pulse: language is empty")
)

// XP is one entry of a serialized pulse.
type XP struct {
	Language string `json:"language"`
	XP       int64  `json:"xp"`
}

// Record is the wire form of a pulse, posted as the request body.
type Record struct {
	CodedAt string `json:"coded_at"`
	XPs     []XP   `json:"xps"`
}

// Payload is a serialized Record. Payloads are retried byte-for-byte.
type Payload []byte

// Pulse accumulates XP per language until it is serialized.
// A Pulse is safe for concurrent use.
type Pulse struct {
	mu      sync.Mutex
	xps     map[string]int64
	payload Payload // set once sealed
}

// NewPulse returns an empty, open pulse.
func NewPulse() *Pulse {
	return &Pulse{xps: make(map[string]int64)}
}

// Add credits amount XP to language. Counts only grow while the pulse is open.
func (p *Pulse) Add(language string, amount int64) error {
	if language == "" {
		return ErrEmptyLanguage
	}
	if amount < 1 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payload != nil {
		return ErrSealed
	}
	p.xps[language] += amount
	return nil
}

// XP returns the XP credited to language.
func (p *Pulse) XP(language string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.xps[language]
}

// Total returns the XP summed over all languages.
func (p *Pulse) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int64
	for _, xp := range p.xps {
		total += xp
	}
	return total
}

// Empty reports whether no XP has been recorded.
func (p *Pulse) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.xps) == 0
}

// Sealed reports whether the pulse has been serialized.
func (p *Pulse) Sealed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload != nil
}

// Languages returns the recorded languages in sorted order.
func (p *Pulse) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.languagesLocked()
}

// Counts returns a copy of the language to XP mapping.
func (p *Pulse) Counts() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.xps))
	for lang, xp := range p.xps {
		out[lang] = xp
	}
	return out
}

func (p *Pulse) languagesLocked() []string {
	langs := make([]string, 0, len(p.xps))
	for lang := range p.xps {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Record returns the wire form stamped with now. It does not seal the pulse.
func (p *Pulse) Record(now time.Time) Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordLocked(now)
}

func (p *Pulse) recordLocked(now time.Time) Record {
	langs := p.languagesLocked()
	xps := make([]XP, 0, len(langs))
	for _, lang := range langs {
		xps = append(xps, XP{Language: lang, XP: p.xps[lang]})
	}
	return Record{
		CodedAt: FormatCodedAt(now),
		XPs:     xps,
	}
}

// Serialize seals the pulse and returns its JSON payload stamped with now.
// Later calls return the payload produced by the first call.
func (p *Pulse) Serialize(now time.Time) (Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payload != nil {
		return p.payload, nil
	}
	b, err := json.Marshal(p.recordLocked(now))
	if err != nil {
		return nil, err
	}
	p.payload = b
	return p.payload, nil
}

// FormatCodedAt renders t in local time at second resolution.
func FormatCodedAt(t time.Time) string {
	return t.Local().Truncate(time.Second).Format(CodedAtLayout)
}

// DecodePayload parses a payload back into its Record.
func DecodePayload(p Payload) (Record, error) {
	var r Record
	err := json.Unmarshal(p, &r)
	return r, err
}
