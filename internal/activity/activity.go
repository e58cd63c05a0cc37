// Package activity decides which editor events count as user activity and which language they belong to.
package activity

import (
	"path"
	"strings"
)

// Event is one modification reported by the editor host.
type Event struct {
	// ViewID identifies the editing surface.
	ViewID string `json:"view_id"`
	// Syntax is the grammar assigned to the view, e.g. "Packages/Python/Python.sublime-syntax".
	Syntax string `json:"syntax"`
	// ReadOnly is set for views the user cannot edit.
	ReadOnly bool `json:"read_only"`
	// Scratch is set for non-interactive buffers (output panels, consoles).
	Scratch bool `json:"scratch"`
	// Widget is set for built-in UI inputs such as find or command palette fields.
	Widget bool `json:"widget"`
	// Focused is set when the view has input focus.
	Focused bool `json:"focused"`
}

// Classifier is the contract between the pulse tracker and an editor host.
type Classifier interface {
	// IsGenuineUserEdit reports whether the event should earn XP.
	IsGenuineUserEdit(ev Event) bool
	// ActiveLanguage returns the language label for the event's view.
	ActiveLanguage(ev Event) string
}

// SyntaxClassifier derives languages from syntax definition paths.
type SyntaxClassifier struct{}

var _ Classifier = SyntaxClassifier{}

// IsGenuineUserEdit excludes read-only, scratch, widget and unfocused views, and views without a syntax.
func (SyntaxClassifier) IsGenuineUserEdit(ev Event) bool {
	if ev.ReadOnly || ev.Scratch || ev.Widget || !ev.Focused {
		return false
	}
	return strings.TrimSpace(ev.Syntax) != ""
}

// ActiveLanguage returns the syntax file's base name without its extension:
// "Packages/Python/Python.sublime-syntax" yields "Python".
func (SyntaxClassifier) ActiveLanguage(ev Event) string {
	return LanguageFromSyntax(ev.Syntax)
}

// LanguageFromSyntax strips the directory and final extension from a syntax path.
func LanguageFromSyntax(syntax string) string {
	syntax = strings.TrimSpace(strings.ReplaceAll(syntax, `\`, "/"))
	if syntax == "" {
		return ""
	}
	base := path.Base(syntax)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
