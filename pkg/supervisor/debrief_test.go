package supervisor

import (
	"testing"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/expert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

func TestDownsampleSnapshotsKeepsAllWhenUnderLimit(t *testing.T) {
	base := time.Now()
	snaps := make([]flightmodel.Snapshot, 10)
	for i := range snaps {
		snaps[i] = flightmodel.Snapshot{Timestamp: base.Add(time.Duration(i) * time.Second)}
	}
	out := downsampleSnapshots(snaps, 1800)
	if len(out) != 10 {
		t.Fatalf("len = %d, want 10", len(out))
	}
}

func TestDownsampleSnapshotsStridesAndKeepsLast(t *testing.T) {
	base := time.Now()
	n := 5000
	snaps := make([]flightmodel.Snapshot, n)
	for i := range snaps {
		snaps[i] = flightmodel.Snapshot{Timestamp: base.Add(time.Duration(i) * time.Second)}
	}
	out := downsampleSnapshots(snaps, 1800)
	if len(out) > 1800 {
		t.Fatalf("len = %d, want at most 1800", len(out))
	}
	if out[len(out)-1].Timestamp != snaps[n-1].Timestamp {
		t.Errorf("last snapshot not preserved, got %v want %v", out[len(out)-1].Timestamp, snaps[n-1].Timestamp)
	}
}

func TestSelectCoachTextPrefersSpeakTextThenFeedbackThenSummary(t *testing.T) {
	cases := []struct {
		name     string
		decision expert.Decision
		want     string
	}{
		{"speak_text wins", expert.Decision{SpeakText: "pull up", FeedbackItems: []string{"a"}, Summary: "b"}, "pull up"},
		{"falls back to feedback", expert.Decision{FeedbackItems: []string{"", "watch your bank angle"}, Summary: "b"}, "watch your bank angle"},
		{"falls back to summary", expert.Decision{Summary: "cruise is stable"}, "cruise is stable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := selectCoachText(tc.decision)
			if got != tc.want {
				t.Errorf("selectCoachText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSelectCoachTextSuppressesLowValueUnlessPriority(t *testing.T) {
	got, priority := selectCoachText(expert.Decision{SpeakText: "no issues observed this segment"})
	if got != "" {
		t.Errorf("low-value text = %q, want suppressed (empty)", got)
	}
	if priority {
		t.Errorf("priority = true for low-value negation, want false")
	}

	got, priority = selectCoachText(expert.Decision{SpeakText: "no issues observed, but watch for a possible stall on short final"})
	if got == "" {
		t.Errorf("expected priority text to survive low-value suppression")
	}
	if !priority {
		t.Errorf("priority = false, want true for text mentioning stall")
	}
}

func TestSelectCoachTextEmptyWhenNoContent(t *testing.T) {
	got, priority := selectCoachText(expert.Decision{})
	if got != "" || priority {
		t.Errorf("selectCoachText(empty) = (%q, %v), want (\"\", false)", got, priority)
	}
}
