package supervisor

import (
	"context"
	"fmt"
	"time"
)

// Start brings up telemetry and the expert team, retrying telemetry
// connection with a fixed interval bounded by StartMaxRetries (0 =
// unlimited), the same shape as the teacher's connectWithRetry. An
// expert-team start failure is logged and does not prevent the tick
// loop from running: reviews simply fail until the team recovers.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.startTelemetryWithRetry(ctx); err != nil {
		return fmt.Errorf("supervisor: start telemetry: %w", err)
	}

	if err := s.team.Start(ctx); err != nil {
		s.log.Warn("supervisor: expert team start failed, continuing without expert review", "error", err)
	}

	s.mu.Lock()
	s.running = true
	s.flightStartedAt = time.Now()
	s.mu.Unlock()

	return nil
}

func (s *Supervisor) startTelemetryWithRetry(ctx context.Context) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := s.telemetry.Start(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if s.cfg.StartMaxRetries > 0 && attempts >= s.cfg.StartMaxRetries {
			return fmt.Errorf("max telemetry connection retries (%d) exceeded: %w", s.cfg.StartMaxRetries, err)
		}

		s.log.Warn("supervisor: telemetry start failed, retrying", "attempt", attempts, "error", err, "retry_interval", s.cfg.StartRetryInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StartRetryInterval):
		}
	}
}

// Stop cancels the tick loop (if running via Run) and tears down the
// expert team and telemetry client. It is safe to call even if Run
// was never started.
func (s *Supervisor) Stop(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}

	if err := s.team.Stop(ctx); err != nil {
		s.log.Warn("supervisor: expert team stop error", "error", err)
	}
	s.telemetry.Stop()
	_ = s.runtimeLog.Close()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// RequestStop signals the tick loop to exit at the next poll
// boundary, mirroring the original's request_stop/stop_event.
func (s *Supervisor) RequestStop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
