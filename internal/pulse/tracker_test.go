package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"code-stats-daemon/internal/activity"
)

func TestTracker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	tm := NewTimer(ctx, quartz.NewMock(t), 10*time.Second, func(context.Context) {})
	defer tm.Stop()
	tr := NewTracker(q, tm, activity.SyntaxClassifier{}, nil, nil)

	py := activity.Event{ViewID: "1", Syntax: "Packages/Python/Python.sublime-syntax", Focused: true}
	testCases := []struct {
		name string
		ev   activity.Event
		want bool
	}{
		{"genuine edit", py, true},
		{"widget", activity.Event{ViewID: "2", Syntax: py.Syntax, Focused: true, Widget: true}, false},
		{"unfocused", activity.Event{ViewID: "3", Syntax: py.Syntax}, false},
		{"no syntax", activity.Event{ViewID: "4", Focused: true}, false},
		{"genuine edit again", py, true},
	}
	for _, tc := range testCases {
		if got := tr.HandleEvent(ctx, tc.ev); got != tc.want {
			t.Errorf("%s: HandleEvent = %v, want %v", tc.name, got, tc.want)
		}
	}
	if got := q.Snapshot().Current; len(got) != 1 || got["Python"] != 2 {
		t.Errorf("current = %v, want Python:2", got)
	}
	if !tm.Armed() {
		t.Error("timer not armed after a genuine edit")
	}
}

func TestTracker_NotReady(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	ready := false
	tr := NewTracker(q, nil, languageClassifier{}, func() bool { return ready }, nil)
	if tr.HandleEvent(ctx, edit("go")) {
		t.Error("HandleEvent before ready = true, want false")
	}
	ready = true
	if !tr.HandleEvent(ctx, edit("go")) {
		t.Error("HandleEvent after ready = false, want true")
	}
	if got := q.Snapshot().Current["go"]; got != 1 {
		t.Errorf("go XP = %d, want 1", got)
	}
}
