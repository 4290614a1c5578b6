package rotation

import (
	"fmt"

	"github.com/systmms/gcpkit/pkg/secretstore"
)

// Outcome classifies how far a rotation got.
type Outcome string

const (
	// OutcomeRotated means the new version is live and the previous one was
	// destroyed.
	OutcomeRotated Outcome = "rotated"
	// OutcomeNothingToRetire means the new version is live and there was no
	// older ENABLED version.
	OutcomeNothingToRetire Outcome = "nothing_to_retire"
	// OutcomeRetireFailed means the new version is live but listing, target
	// selection or destroy failed.
	OutcomeRetireFailed Outcome = "retire_failed"
	// OutcomeFailed means AddVersion failed and nothing changed.
	OutcomeFailed Outcome = "failed"
)

// Succeeded reports whether the rotation fully completed.
func (o Outcome) Succeeded() bool {
	return o == OutcomeRotated || o == OutcomeNothingToRetire
}

// NewVersionLive reports whether the new version was committed.
func (o Outcome) NewVersionLive() bool {
	return o != OutcomeFailed
}

// Stage names the retirement step that failed.
type Stage string

const (
	StageList    Stage = "list"
	StageSelect  Stage = "select"
	StageDestroy Stage = "destroy"
)

// Result describes one RotateAndRetire run. It is returned even when the run
// fails.
type Result struct {
	Identity       secretstore.Identity
	Outcome        Outcome
	NewVersion     string
	RetiredVersion string
	Err            error

	// Diagnostics is set only when the run was started WithDiagnostics.
	Diagnostics *Diagnostics
}

// Diagnostics holds version listings captured during a run.
//
// Before is the listing taken right after the add (the one used to choose
// the retirement target). After is a fresh listing taken once the destroy
// succeeded; it stays nil when nothing was destroyed.
type Diagnostics struct {
	Before   []secretstore.Version
	After    []secretstore.Version
	AfterErr error
}

// RetirementError reports that the new version was committed but the old
// version could not be retired. Err is the underlying store error.
type RetirementError struct {
	Identity   secretstore.Identity
	NewVersion string
	Stage      Stage
	Target     string
	Err        error
}

func (e *RetirementError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("version %s of %s is live but retiring version %s failed at %s: %v",
			e.NewVersion, e.Identity, e.Target, e.Stage, e.Err)
	}
	return fmt.Sprintf("version %s of %s is live but retirement failed at %s: %v",
		e.NewVersion, e.Identity, e.Stage, e.Err)
}

func (e *RetirementError) Unwrap() error { return e.Err }
