package expert

import (
	"context"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// FakeTeam is a deterministic Team double. It lives outside _test.go so
// other packages' tests (pkg/supervisor's, chiefly) can import it without
// a real HTTP collaborator.
type FakeTeam struct {
	Profile   flightmodel.SessionProfile
	Decision  Decision
	Variants  map[string][]string
	StartErr  error
	ReviewErr error
}

func (f *FakeTeam) Start(context.Context) error { return f.StartErr }
func (f *FakeTeam) Stop(context.Context) error  { return nil }
func (f *FakeTeam) BootstrapSession(context.Context) (flightmodel.SessionProfile, error) {
	return f.Profile, nil
}
func (f *FakeTeam) RunReview(context.Context, flightmodel.ReviewWindow) (Decision, error) {
	return f.Decision, f.ReviewErr
}
func (f *FakeTeam) RefreshHazardPhraseVariants(context.Context) (map[string][]string, error) {
	return f.Variants, nil
}

var _ Team = (*FakeTeam)(nil)
