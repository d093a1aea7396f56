// Package expert defines the contract for the external instructor-team
// collaborator and an HTTP implementation of it. The real collaborator
// (a multi-agent LLM team selecting among phase-specialized experts) is
// out of scope here; this package only models the wire contract a
// from-scratch Go client needs: bootstrap a session profile, run a
// periodic review, and refresh hazard speech phrasing, all behind a JWT
// bearer-authenticated HTTP transport.
package expert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aerocfi/cfi-supervisor/pkg/convert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// ErrExpertAuth is returned when the configured signing key cannot
// produce a bearer token, or the server rejects the token it signed.
var ErrExpertAuth = errors.New("expert: authentication failed")

// ErrExpertUnavailable wraps any transport or non-2xx response from the
// expert team endpoint; callers fall back to defaults on this error.
var ErrExpertUnavailable = errors.New("expert: team endpoint unavailable")

// Decision is the master coordinator's structured output for one review
// window: a short summary, up to three feedback items, and an optional
// line to speak immediately.
type Decision struct {
	Phase           flightmodel.Phase
	Summary         string
	FeedbackItems   []string
	SpeakNow        bool
	SpeakText       string
	RawMasterOutput string
}

// Team is the contract the runtime supervisor depends on. HTTPTeam is the
// production implementation; tests substitute a fake.
type Team interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	BootstrapSession(ctx context.Context) (flightmodel.SessionProfile, error)
	RunReview(ctx context.Context, window flightmodel.ReviewWindow) (Decision, error)
	RefreshHazardPhraseVariants(ctx context.Context) (map[string][]string, error)
}

// Config parameterizes HTTPTeam.
type Config struct {
	BaseURL    string
	SigningKey []byte
	Issuer     string
	Subject    string
	TokenTTL   time.Duration
	HTTPClient *http.Client
}

// HTTPTeam talks to the expert-team HTTP endpoint, minting a fresh
// short-lived JWT bearer token for every call per Config.TokenTTL.
type HTTPTeam struct {
	cfg    Config
	client *http.Client
}

// NewHTTPTeam builds an HTTPTeam. A nil cfg.HTTPClient gets a client with
// a 10s timeout.
func NewHTTPTeam(cfg Config) *HTTPTeam {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 60 * time.Second
	}
	return &HTTPTeam{cfg: cfg, client: cfg.HTTPClient}
}

func (t *HTTPTeam) Start(ctx context.Context) error { return nil }
func (t *HTTPTeam) Stop(ctx context.Context) error  { return nil }

func (t *HTTPTeam) BootstrapSession(ctx context.Context) (flightmodel.SessionProfile, error) {
	var out struct {
		AircraftICAO   string                      `json:"aircraft_icao"`
		Category       string                      `json:"category"`
		Confidence     float64                     `json:"confidence"`
		Assumptions    []string                    `json:"assumptions"`
		WelcomeMessage string                      `json:"welcome_message"`
		EnabledRules   []string                    `json:"enabled_rules"`
		Thresholds     map[string]float64          `json:"thresholds"`
		SpeechVariants map[string][]string         `json:"speech_variants"`
	}
	if err := t.post(ctx, "/v1/session/bootstrap", nil, &out); err != nil {
		return flightmodel.SessionProfile{}, err
	}

	enabled := make(map[string]struct{}, len(out.EnabledRules))
	for _, r := range out.EnabledRules {
		enabled[r] = struct{}{}
	}

	category := flightmodel.AircraftCategory(out.Category)
	if category == "" || category == flightmodel.CategoryUnknown {
		if byType := convert.CategoryForICAOType(out.AircraftICAO); byType != convert.CategoryUnknown {
			category = flightmodel.AircraftCategory(byType)
		}
	}

	return flightmodel.SessionProfile{
		AircraftICAO:   out.AircraftICAO,
		Category:       category,
		Confidence:     out.Confidence,
		Assumptions:    out.Assumptions,
		WelcomeMessage: out.WelcomeMessage,
		Hazard: flightmodel.HazardProfile{
			EnabledRules:   enabled,
			Thresholds:     out.Thresholds,
			SpeechVariants: out.SpeechVariants,
		},
	}, nil
}

func (t *HTTPTeam) RunReview(ctx context.Context, window flightmodel.ReviewWindow) (Decision, error) {
	req := struct {
		ReviewWindow flightmodel.ReviewWindow `json:"review_window"`
	}{ReviewWindow: window}

	var out struct {
		Summary         string   `json:"summary"`
		FeedbackItems   []string `json:"feedback_items"`
		SpeakNow        bool     `json:"speak_now"`
		SpeakText       string   `json:"speak_text"`
		RawMasterOutput string   `json:"raw_master_output"`
	}
	if err := t.post(ctx, "/v1/review", req, &out); err != nil {
		return Decision{}, err
	}

	feedback := out.FeedbackItems
	if len(feedback) > 3 {
		feedback = feedback[:3]
	}
	speakNow := out.SpeakNow && out.SpeakText != ""

	return Decision{
		Phase:           window.Phase,
		Summary:         out.Summary,
		FeedbackItems:   feedback,
		SpeakNow:        speakNow,
		SpeakText:       out.SpeakText,
		RawMasterOutput: out.RawMasterOutput,
	}, nil
}

func (t *HTTPTeam) RefreshHazardPhraseVariants(ctx context.Context) (map[string][]string, error) {
	var out struct {
		SpeechVariants map[string][]string `json:"speech_variants"`
	}
	if err := t.post(ctx, "/v1/hazard-phrases/refresh", nil, &out); err != nil {
		return nil, err
	}
	return out.SpeechVariants, nil
}

func (t *HTTPTeam) post(ctx context.Context, path string, body any, out any) error {
	token, err := t.signToken()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExpertAuth, err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("expert: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("expert: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExpertUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrExpertAuth
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrExpertUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("expert: decode response: %w", err)
	}
	return nil
}

// signToken mints a short-lived HS256 bearer token, the same shape used
// by Asgard's AuthService.SignIn: a standard claims set signed with a
// shared secret.
func (t *HTTPTeam) signToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    t.cfg.Issuer,
		Subject:   t.cfg.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.SigningKey)
}
