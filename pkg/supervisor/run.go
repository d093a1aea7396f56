package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/expert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// Run starts the supervisor (if not already started via Start) and
// blocks, driving the tick loop until ctx is cancelled, RequestStop is
// called, or duration elapses (duration<=0 falls back to
// Config.MaxFlightDuration, where 0 means unbounded). Once started, it
// always calls Stop before returning, mirroring the original's try/finally.
func (s *Supervisor) Run(ctx context.Context, duration time.Duration) error {
	s.mu.Lock()
	started := s.running
	s.mu.Unlock()
	if !started {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	if duration <= 0 {
		duration = s.cfg.MaxFlightDuration
	}
	defer func() { _ = s.Stop(context.Background()) }()
	defer close(s.done)

	s.bootstrapSession(ctx)

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go s.hazardPhraseRefreshLoop(refreshCtx)
	go s.reviewTickLoop(refreshCtx)

	startEpoch := time.Now()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case outcome := <-s.reviewResults:
			s.applyReviewOutcome(ctx, outcome)
		case variants := <-s.variantUpdates:
			s.hazard.UpdateSpeechVariants(variants)
		case profile := <-s.profileUpdates:
			s.hazard.SetHazardProfile(profile)
			s.log.Info("hazard profile reloaded")
		case <-ticker.C:
			if duration > 0 && time.Since(startEpoch) >= duration {
				return nil
			}
			s.pollOnce(ctx)
		}
	}
}

func (s *Supervisor) bootstrapSession(ctx context.Context) {
	profile, err := s.team.BootstrapSession(ctx)
	if err != nil {
		s.log.Warn("supervisor: expert-team bootstrap failed, using default session profile", "error", err)
		profile = flightmodel.DefaultSessionProfile()
	}
	s.hazard.SetHazardProfile(profile.Hazard)

	if profile.WelcomeMessage == "" {
		return
	}
	spoke, err := s.speech.SpeakNonurgent(ctx, profile.WelcomeMessage)
	if err != nil {
		s.log.Warn("supervisor: welcome message speech failed", "error", err)
	}
	_ = s.runtimeLog.Write(map[string]any{
		"session_id": s.sessionID,
		"ts":         float64(time.Now().UnixNano()) / 1e9,
		"event":      "welcome_message",
		"spoken":     spoke,
		"text":       profile.WelcomeMessage,
	})
	if spoke && s.metrics != nil {
		s.metrics.SpeechSpoken.WithLabelValues("nonurgent").Inc()
	}
}

func (s *Supervisor) pollOnce(ctx context.Context) {
	snap, ok := s.telemetry.Latest()
	if !ok {
		return
	}

	s.mu.Lock()
	isNew := snap.Timestamp.After(s.lastSnapshotTS)
	if isNew {
		s.lastSnapshotTS = snap.Timestamp
	}
	s.mu.Unlock()
	if !isNew {
		return
	}

	s.processSnapshot(ctx, snap)
}

func (s *Supervisor) processSnapshot(ctx context.Context, snap flightmodel.Snapshot) {
	s.mu.Lock()
	s.ticksProcessed++
	s.sessionBuffer = append(s.sessionBuffer, snap)
	if len(s.sessionBuffer) > maxSessionBufferSize {
		s.sessionBuffer = s.sessionBuffer[len(s.sessionBuffer)-maxSessionBufferSize:]
	}
	s.mu.Unlock()

	phaseState := s.phase.Update(snap)
	s.mu.Lock()
	previous := s.phaseState
	s.phaseState = phaseState
	if phaseState.Changed {
		s.sessionPhasePath = append(s.sessionPhasePath, phaseState.Phase)
	}
	s.mu.Unlock()

	if phaseState.Changed {
		s.log.Info("phase change", "from", previous.Phase, "to", phaseState.Phase, "confidence", phaseState.Confidence)
		_ = s.runtimeLog.Write(map[string]any{
			"session_id": s.sessionID,
			"ts":              float64(time.Now().UnixNano()) / 1e9,
			"event":           "phase_change",
			"phase":           string(phaseState.Phase),
			"previous_phase":  string(previous.Phase),
			"confidence":      phaseState.Confidence,
		})
		if s.metrics != nil {
			s.metrics.PhaseChanges.WithLabelValues(string(previous.Phase), string(phaseState.Phase)).Inc()
		}
		s.broadcast(eventbus.EventPhaseChanged, map[string]any{
			"from": previous.Phase,
			"to":   phaseState.Phase,
		})
	}
	if s.metrics != nil {
		s.metrics.TicksProcessed.WithLabelValues(string(phaseState.Phase)).Inc()
		s.metrics.CurrentPhase.Reset()
		s.metrics.CurrentPhase.WithLabelValues(string(phaseState.Phase)).Set(1)
	}

	s.evaluateHazards(ctx, snap, phaseState)
	s.evaluateRules(snap, phaseState)
	s.evaluateShutdownCycle(ctx, snap)
}

func (s *Supervisor) evaluateHazards(ctx context.Context, snap flightmodel.Snapshot, phaseState flightmodel.PhaseState) {
	alerts := s.hazard.Evaluate(snap, phaseState)
	for _, alert := range alerts {
		s.mu.Lock()
		s.sessionAlertHistogram[alert.AlertID]++
		s.mu.Unlock()

		spoke, err := s.speech.SpeakUrgent(ctx, alert.AlertID, alert.SpeakText)
		if err != nil {
			s.log.Warn("supervisor: urgent speech failed", "alert_id", alert.AlertID, "error", err)
		}
		_ = s.runtimeLog.Write(map[string]any{
			"session_id": s.sessionID,
			"ts":      float64(time.Now().UnixNano()) / 1e9,
			"event":   "hazard_alert",
			"phase":   string(phaseState.Phase),
			"alert_id": alert.AlertID,
			"severity": string(alert.Severity),
			"message":  alert.Message,
			"spoken":   spoke,
		})
		if s.metrics != nil {
			s.metrics.HazardAlertsTotal.WithLabelValues(alert.AlertID, string(alert.Severity)).Inc()
			if spoke {
				s.metrics.SpeechSpoken.WithLabelValues("urgent").Inc()
			} else {
				s.metrics.SpeechSuppressed.WithLabelValues("urgent").Inc()
			}
		}
		s.broadcast(eventbus.EventHazardAlert, alert)
		if spoke {
			s.log.Info("urgent alert spoken", "alert_id", alert.AlertID, "text", alert.SpeakText)
			s.telemetryLog.Emit("urgent_alert_spoken", 1, map[string]any{"alert_id": alert.AlertID})
		}
	}
}

func (s *Supervisor) evaluateRules(snap flightmodel.Snapshot, phaseState flightmodel.PhaseState) {
	findings := s.rules.Update(snap)
	if len(findings) > 0 {
		s.mu.Lock()
		s.sessionFindings = append(s.sessionFindings, findings...)
		s.mu.Unlock()
	}
	for _, f := range findings {
		_ = s.runtimeLog.Write(map[string]any{
			"session_id": s.sessionID,
			"ts":       float64(f.Timestamp.UnixNano()) / 1e9,
			"event":    "rule_finding",
			"rule_id":  f.RuleID,
			"severity": string(f.Severity),
			"phase":    f.Phase,
			"message":  f.Message,
		})
		if s.metrics != nil {
			s.metrics.RuleFindingsTotal.WithLabelValues(f.RuleID, string(f.Severity)).Inc()
		}
		s.broadcast(eventbus.EventRuleFinding, f)
	}
}

// evaluateShutdownCycle drives the supervisor's own airborne/shutdown
// latch, independent of phase.Tracker's and rules.Engine's. On a
// confirmed shutdown dwell it emits one full-flight debrief; once a
// debrief has been emitted, it watches for new-flight activity and
// resets the whole flight's state for flight_index+1.
func (s *Supervisor) evaluateShutdownCycle(ctx context.Context, snap flightmodel.Snapshot) {
	s.mu.Lock()

	if s.shutdown.debriefEmitted {
		if !isNewFlightActivity(snap) {
			s.mu.Unlock()
			return
		}
		s.flightIndex++
		flightIndex := s.flightIndex
		s.phase.Reset()
		s.rules.Reset()
		s.hazard.Reset()
		s.review.Reset()
		s.shutdown.reset()
		s.shutdownDwellSince = time.Time{}
		s.sessionBuffer = nil
		s.sessionFindings = nil
		s.sessionPhasePath = nil
		s.sessionAlertHistogram = make(map[string]int)
		s.mu.Unlock()

		s.log.Info("new flight cycle detected", "flight_index", flightIndex)
		_ = s.runtimeLog.Write(map[string]any{
			"session_id":   s.sessionID,
			"ts":           float64(snap.Timestamp.UnixNano()) / 1e9,
			"event":        "flight_cycle_started",
			"flight_index": flightIndex,
		})
		s.broadcast(eventbus.EventNewFlightDetected, map[string]any{"flight_index": flightIndex})
		return
	}

	s.shutdown.observeAirborne(snap)

	if !s.shutdown.shutdownConditionHolds(snap) {
		s.shutdownDwellSince = time.Time{}
		s.mu.Unlock()
		return
	}

	if s.shutdownDwellSince.IsZero() {
		s.shutdownDwellSince = snap.Timestamp
		s.mu.Unlock()
		return
	}

	if snap.Timestamp.Sub(s.shutdownDwellSince).Seconds() < s.cfg.ShutdownDetectDwellSec {
		s.mu.Unlock()
		return
	}

	s.shutdown.debriefEmitted = true
	flightIndex := s.flightIndex
	s.mu.Unlock()

	s.log.Info("engine shutdown detected", "flight_index", flightIndex)
	_ = s.runtimeLog.Write(map[string]any{
		"session_id":   s.sessionID,
		"ts":           float64(snap.Timestamp.UnixNano()) / 1e9,
		"event":        "engine_shutdown_detected",
		"flight_index": flightIndex,
	})
	s.broadcast(eventbus.EventShutdownDetected, map[string]any{"flight_index": flightIndex})

	s.runShutdownDebrief(ctx, flightIndex)
}

// runShutdownDebrief builds one ReviewWindow over the whole flight,
// downsampled to maxDebriefSnapshots, augments its hints with duration,
// phase path, and the urgent-alert histogram, calls the expert team
// exactly once, journals a shutdown_debrief event, and speaks the
// resulting coaching line on the non-urgent channel.
func (s *Supervisor) runShutdownDebrief(ctx context.Context, flightIndex int) {
	s.mu.Lock()
	buffer := append([]flightmodel.Snapshot(nil), s.sessionBuffer...)
	phasePath := append([]flightmodel.Phase(nil), s.sessionPhasePath...)
	findingCount := len(s.sessionFindings)
	alertHistogram := make(map[string]int, len(s.sessionAlertHistogram))
	for id, n := range s.sessionAlertHistogram {
		alertHistogram[id] = n
	}
	currentPhase := s.phaseState.Phase
	s.mu.Unlock()

	if len(buffer) == 0 {
		s.log.Warn("supervisor: shutdown debrief skipped, no session snapshots recorded")
		return
	}

	downsampled := downsampleSnapshots(buffer, maxDebriefSnapshots)
	window, err := s.review.Build(downsampled, currentPhase)
	if err != nil {
		s.log.Warn("supervisor: shutdown debrief window build failed", "error", err)
		return
	}
	window.EventHints = append(window.EventHints, debriefAugmentedHints(buffer, phasePath, alertHistogram, findingCount)...)

	debriefCtx, cancel := context.WithTimeout(ctx, s.cfg.ExpertReviewTimeout)
	decision, err := s.team.RunReview(debriefCtx, window)
	cancel()

	record := map[string]any{
		"session_id":    s.sessionID,
		"ts":            float64(time.Now().UnixNano()) / 1e9,
		"event":         "shutdown_debrief",
		"flight_index":  flightIndex,
		"sample_count":  len(downsampled),
		"event_hints":   window.EventHints,
	}
	if err != nil {
		s.log.Warn("supervisor: shutdown debrief review failed", "error", err)
		record["error"] = err.Error()
		_ = s.runtimeLog.Write(record)
		if s.metrics != nil {
			s.metrics.ExpertErrors.WithLabelValues("shutdown_debrief").Inc()
		}
		return
	}

	record["summary"] = decision.Summary
	_ = s.runtimeLog.Write(record)
	s.broadcast(eventbus.EventReviewDecision, decision)
	s.log.Info("shutdown debrief complete", "flight_index", flightIndex, "summary", decision.Summary)

	if !s.cfg.NonurgentSpeakEnabled {
		return
	}
	coachText, _ := selectCoachText(decision)
	if coachText == "" {
		return
	}
	spoke, err := s.speech.SpeakNonurgent(ctx, coachText)
	if err != nil {
		s.log.Warn("supervisor: shutdown debrief speech failed", "error", err)
	}
	_ = s.runtimeLog.Write(map[string]any{
		"session_id":   s.sessionID,
		"ts":           float64(time.Now().UnixNano()) / 1e9,
		"event":        "shutdown_debrief_speech",
		"flight_index": flightIndex,
		"spoken":       spoke,
		"text":         coachText,
	})
	if spoke && s.metrics != nil {
		s.metrics.SpeechSpoken.WithLabelValues("nonurgent").Inc()
	}
}

func (s *Supervisor) broadcast(t eventbus.EventType, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(eventbus.Event{Type: t, Payload: payload})
}

func (s *Supervisor) hazardPhraseRefreshLoop(ctx context.Context) {
	if s.cfg.HazardPhraseRefreshSec <= 0 {
		return
	}
	interval := time.Duration(s.cfg.HazardPhraseRefreshSec * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			variants, err := s.team.RefreshHazardPhraseVariants(ctx)
			if err != nil {
				s.log.Warn("supervisor: hazard phrase refresh failed", "error", err)
				continue
			}
			select {
			case s.variantUpdates <- variants:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Supervisor) reviewTickLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.ReviewTickSec * float64(time.Second))
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	windowDuration := time.Duration(s.cfg.ReviewWindowSec * float64(time.Second))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots := s.telemetry.Window(windowDuration)
			if len(snapshots) == 0 {
				continue
			}

			s.mu.Lock()
			currentPhase := s.phaseState.Phase
			suppressed := s.authSuppressed
			s.mu.Unlock()
			if suppressed {
				continue
			}

			window, err := s.review.Build(snapshots, currentPhase)
			if err != nil {
				continue
			}

			reviewCtx, cancel := context.WithTimeout(ctx, s.cfg.ExpertReviewTimeout)
			decision, err := s.team.RunReview(reviewCtx, window)
			cancel()

			outcome := reviewOutcome{window: window, decision: decision, err: err, at: time.Now()}
			select {
			case s.reviewResults <- outcome:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Supervisor) applyReviewOutcome(ctx context.Context, outcome reviewOutcome) {
	if outcome.err != nil {
		if errors.Is(outcome.err, expert.ErrExpertAuth) {
			s.mu.Lock()
			alreadySuppressed := s.authSuppressed
			s.authSuppressed = true
			s.mu.Unlock()
			if !alreadySuppressed {
				s.log.Error("supervisor: expert-team authentication failed, suppressing further reviews", "error", outcome.err)
				_ = s.runtimeLog.Write(map[string]any{
					"session_id": s.sessionID,
					"ts":    float64(time.Now().UnixNano()) / 1e9,
					"event": "expert_auth_failed",
				})
			}
			return
		}
		s.log.Warn("supervisor: review failed", "error", outcome.err)
		if s.metrics != nil {
			s.metrics.ExpertErrors.WithLabelValues("run_review").Inc()
		}
		return
	}

	_ = s.runtimeLog.Write(map[string]any{
		"session_id": s.sessionID,
		"ts":       float64(outcome.at.UnixNano()) / 1e9,
		"event":    "team_decision",
		"phase":    string(outcome.window.Phase),
		"summary":  outcome.decision.Summary,
		"speak_now": outcome.decision.SpeakNow,
	})
	s.broadcast(eventbus.EventReviewDecision, outcome.decision)
	s.log.Info("review decision", "summary", outcome.decision.Summary)

	if !s.cfg.NonurgentSpeakEnabled {
		return
	}

	coachText, priority := selectCoachText(outcome.decision)
	if coachText == "" {
		return
	}

	if s.speech.RecentUrgent(s.cfg.NonurgentSuppressAfterUrgentSec) {
		_ = s.runtimeLog.Write(map[string]any{
			"session_id": s.sessionID,
			"ts":     float64(time.Now().UnixNano()) / 1e9,
			"event":  "nonurgent_speech_suppressed",
			"reason": "recent_urgent",
		})
		if s.metrics != nil {
			s.metrics.SpeechSuppressed.WithLabelValues("nonurgent").Inc()
		}
		return
	}

	spoke, err := s.speech.SpeakNonurgent(ctx, coachText)
	if err != nil {
		s.log.Warn("supervisor: nonurgent speech failed", "error", err)
	}
	fellBackToUrgent := false
	if !spoke && priority {
		fellBackToUrgent, err = s.speech.SpeakUrgent(ctx, "review_priority_fallback", coachText)
		if err != nil {
			s.log.Warn("supervisor: priority fallback speech failed", "error", err)
		} else if fellBackToUrgent {
			s.log.Info("priority review coaching fell back to urgent channel", "text", coachText)
		}
	}
	_ = s.runtimeLog.Write(map[string]any{
		"session_id":          s.sessionID,
		"ts":                  float64(time.Now().UnixNano()) / 1e9,
		"event":               "nonurgent_speech",
		"spoken":              spoke || fellBackToUrgent,
		"text":                coachText,
		"priority":            priority,
		"fell_back_to_urgent": fellBackToUrgent,
	})
	if spoke {
		if s.metrics != nil {
			s.metrics.SpeechSpoken.WithLabelValues("nonurgent").Inc()
		}
		s.telemetryLog.Emit("nonurgent_speech_spoken", 1, nil)
	} else if fellBackToUrgent {
		if s.metrics != nil {
			s.metrics.SpeechSpoken.WithLabelValues("urgent").Inc()
		}
		s.telemetryLog.Emit("nonurgent_speech_spoken", 1, nil)
	}
}
