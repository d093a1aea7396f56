package expert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

func TestBootstrapSessionSendsBearerTokenAndDecodes(t *testing.T) {
	secret := []byte("test-signing-key-at-least-32-bytes!")
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"aircraft_icao":   "C172",
			"category":        "single_engine_piston",
			"confidence":      0.9,
			"assumptions":     []string{"visual inspection"},
			"welcome_message": "ready",
			"enabled_rules":   []string{"stall_or_low_speed"},
			"thresholds":      map[string]float64{"low_airspeed_kt": 52},
			"speech_variants": map[string][]string{},
		})
	}))
	defer srv.Close()

	team := NewHTTPTeam(Config{BaseURL: srv.URL, SigningKey: secret, Issuer: "cfi-supervisor", Subject: "session-1"})
	profile, err := team.BootstrapSession(context.Background())
	if err != nil {
		t.Fatalf("BootstrapSession() error = %v", err)
	}
	if profile.AircraftICAO != "C172" {
		t.Errorf("AircraftICAO = %q, want C172", profile.AircraftICAO)
	}
	if !profile.Hazard.Enabled("stall_or_low_speed") {
		t.Errorf("expected stall_or_low_speed enabled")
	}
	if gotAuth == "" || gotAuth[:7] != "Bearer " {
		t.Fatalf("Authorization header = %q, want Bearer-prefixed", gotAuth)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(gotAuth[7:], claims, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		t.Fatalf("token did not verify against signing key: %v", err)
	}
	if claims.Subject != "session-1" {
		t.Errorf("claims.Subject = %q, want session-1", claims.Subject)
	}
}

func TestRunReviewTrimsFeedbackAndRequiresSpeakText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"summary":        "ok",
			"feedback_items": []string{"a", "b", "c", "d"},
			"speak_now":      true,
			"speak_text":     "",
		})
	}))
	defer srv.Close()

	team := NewHTTPTeam(Config{BaseURL: srv.URL, SigningKey: []byte("0123456789012345678901234567890123456789")})
	decision, err := team.RunReview(context.Background(), flightmodel.ReviewWindow{Phase: flightmodel.PhaseCruise})
	if err != nil {
		t.Fatalf("RunReview() error = %v", err)
	}
	if len(decision.FeedbackItems) != 3 {
		t.Errorf("FeedbackItems len = %d, want 3", len(decision.FeedbackItems))
	}
	if decision.SpeakNow {
		t.Errorf("SpeakNow = true with empty SpeakText, want false")
	}
}

func TestUnauthorizedMapsToErrExpertAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	team := NewHTTPTeam(Config{BaseURL: srv.URL, SigningKey: []byte("k"), TokenTTL: time.Second})
	if _, err := team.BootstrapSession(context.Background()); err != ErrExpertAuth {
		t.Fatalf("err = %v, want ErrExpertAuth", err)
	}
}

func TestServerErrorMapsToErrExpertUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	team := NewHTTPTeam(Config{BaseURL: srv.URL, SigningKey: []byte("k")})
	_, err := team.RefreshHazardPhraseVariants(context.Background())
	if !errors.Is(err, ErrExpertUnavailable) {
		t.Fatalf("err = %v, want ErrExpertUnavailable for 500 response", err)
	}
}
var _ Team = (*HTTPTeam)(nil)
