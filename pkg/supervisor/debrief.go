package supervisor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/expert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// maxSessionBufferSize bounds the per-flight snapshot buffer the debrief
// downsamples from; older entries are trimmed from the front once it's
// exceeded, the same way a bounded ring would, but kept as a slice since
// the debrief needs it in chronological order anyway.
const maxSessionBufferSize = 100_000

// maxDebriefSnapshots is the full-flight debrief's sample ceiling: the
// whole flight is downsampled to at most this many snapshots before
// being handed to the review builder.
const maxDebriefSnapshots = 1800

// downsampleSnapshots strides through snapshots so the result has at
// most max entries, always keeping the final one so the debrief never
// loses the last recorded state of the flight.
func downsampleSnapshots(snapshots []flightmodel.Snapshot, max int) []flightmodel.Snapshot {
	n := len(snapshots)
	if n <= max {
		return snapshots
	}

	stride := (n + max - 1) / max
	out := make([]flightmodel.Snapshot, 0, max+1)
	for i := 0; i < n; i += stride {
		out = append(out, snapshots[i])
	}
	last := snapshots[n-1]
	if out[len(out)-1].Timestamp != last.Timestamp {
		if len(out) == max {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// debriefAugmentedHints builds the extra event hints spec §4.H calls for
// on top of the review builder's own: flight duration, the phase path
// walked, and a histogram of which urgent alerts fired how often.
func debriefAugmentedHints(buffer []flightmodel.Snapshot, phasePath []flightmodel.Phase, alertHistogram map[string]int, findingCount int) []string {
	var hints []string

	if len(buffer) > 0 {
		duration := buffer[len(buffer)-1].Timestamp.Sub(buffer[0].Timestamp)
		hints = append(hints, fmt.Sprintf("Flight duration: %s.", duration.Round(time.Second)))
	}

	if len(phasePath) > 0 {
		names := make([]string, len(phasePath))
		for i, p := range phasePath {
			names[i] = string(p)
		}
		hints = append(hints, fmt.Sprintf("Phase path: %s.", strings.Join(names, " -> ")))
	}

	if len(alertHistogram) > 0 {
		ids := make([]string, 0, len(alertHistogram))
		for id := range alertHistogram {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprintf("%s x%d", id, alertHistogram[id])
		}
		hints = append(hints, fmt.Sprintf("Urgent alerts this flight: %s.", strings.Join(parts, ", ")))
	}

	if findingCount > 0 {
		hints = append(hints, fmt.Sprintf("Rule findings recorded this flight: %d.", findingCount))
	}

	return hints
}

// priorityKeywords marks a review decision as high-value enough to
// override the low-value suppression, and to earn a speak_urgent
// fallback if the non-urgent channel fails to deliver it.
var priorityKeywords = []string{"stall", "sink rate", "unstable", "hazard", "critical"}

// lowValuePhrases flag a coaching line as a content-free negation, worth
// suppressing unless the decision is already priority.
var lowValuePhrases = []string{
	"no issues observed", "no issues", "nothing to report", "no concerns",
	"all good", "looks good", "everything looks good",
}

// selectCoachText implements spec §4.H's non-urgent coach_text
// selection: speak_text, or the first non-empty feedback item, or the
// summary; content-free negations are suppressed unless the decision is
// priority (it contains one of priorityKeywords: stall, sink rate,
// unstable, hazard, critical).
func selectCoachText(decision expert.Decision) (text string, priority bool) {
	text = strings.TrimSpace(decision.SpeakText)
	if text == "" {
		for _, item := range decision.FeedbackItems {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				text = trimmed
				break
			}
		}
	}
	if text == "" {
		text = strings.TrimSpace(decision.Summary)
	}
	if text == "" {
		return "", false
	}

	haystack := strings.ToLower(decision.Summary + " " + strings.Join(decision.FeedbackItems, " ") + " " + decision.SpeakText)
	priority = containsAny(haystack, priorityKeywords)
	if !priority && containsAny(strings.ToLower(text), lowValuePhrases) {
		return "", false
	}
	return text, priority
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
