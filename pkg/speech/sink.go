// Package speech arbitrates when a hazard alert or a non-urgent coaching
// line actually reaches the pilot: per-key urgent cooldowns, a global
// non-urgent cooldown, and a global "don't interrupt with coaching right
// after an urgent call" suppression window. The underlying transport
// (how "speak this text" actually reaches the simulator) is injected as
// a Speaker so this package never depends on the expert-team transport.
package speech

import (
	"context"
	"sync"
	"time"
)

// Speaker delivers one line of speech. Implementations decide transport:
// HTTP call to the expert team's speak tool, a dry-run no-op, a test
// double.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to the Speaker interface.
type SpeakerFunc func(ctx context.Context, text string) error

func (f SpeakerFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

// Sink owns the cooldown/suppression state machine in front of a Speaker.
// Safe for concurrent use: the runtime supervisor's urgent and
// non-urgent paths may call it from different goroutines.
type Sink struct {
	speaker             Speaker
	urgentCooldownSec   float64
	nonurgentCooldownSec float64
	dryRun              bool

	mu                sync.Mutex
	lastUrgentByKey   map[string]time.Time
	lastNonurgentAt   time.Time
	lastUrgentAt      time.Time
}

// New builds a Sink. A nil speaker is only valid when dryRun is true.
func New(speaker Speaker, urgentCooldownSec, nonurgentCooldownSec float64, dryRun bool) *Sink {
	return &Sink{
		speaker:               speaker,
		urgentCooldownSec:     urgentCooldownSec,
		nonurgentCooldownSec:  nonurgentCooldownSec,
		dryRun:                dryRun,
		lastUrgentByKey:       make(map[string]time.Time),
	}
}

// SpeakUrgent delivers text under the given cooldown key (typically the
// hazard alert ID). It returns false without speaking if that key's
// cooldown has not elapsed. In dry-run mode the cooldown still advances,
// but no Speaker call is made.
func (s *Sink) SpeakUrgent(ctx context.Context, key, text string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	last, ok := s.lastUrgentByKey[key]
	if ok && now.Sub(last).Seconds() < s.urgentCooldownSec {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if s.dryRun {
		s.mu.Lock()
		s.lastUrgentByKey[key] = now
		s.lastUrgentAt = now
		s.mu.Unlock()
		return true, nil
	}

	if err := s.speaker.Speak(ctx, text); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.lastUrgentByKey[key] = now
	s.lastUrgentAt = now
	s.mu.Unlock()
	return true, nil
}

// SpeakNonurgent delivers a coaching line, gated by the single global
// non-urgent cooldown. It returns false without speaking if the cooldown
// hasn't elapsed; callers are expected to separately check RecentUrgent
// before calling this, since this method does not consult urgent state.
func (s *Sink) SpeakNonurgent(ctx context.Context, text string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	if !s.lastNonurgentAt.IsZero() && now.Sub(s.lastNonurgentAt).Seconds() < s.nonurgentCooldownSec {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	if s.dryRun {
		s.mu.Lock()
		s.lastNonurgentAt = now
		s.mu.Unlock()
		return true, nil
	}

	if err := s.speaker.Speak(ctx, text); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.lastNonurgentAt = now
	s.mu.Unlock()
	return true, nil
}

// RecentUrgent reports whether an urgent alert was spoken within the last
// withinSec seconds. The runtime supervisor uses this to suppress
// non-urgent review speech right after an urgent call.
func (s *Sink) RecentUrgent(withinSec float64) bool {
	if withinSec < 0 {
		withinSec = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUrgentAt.IsZero() {
		return false
	}
	return time.Since(s.lastUrgentAt).Seconds() <= withinSec
}
