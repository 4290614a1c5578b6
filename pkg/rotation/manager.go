package rotation

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/internal/metrics"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// Store is the subset of *secretstore.Store the manager drives.
type Store interface {
	AddVersion(ctx context.Context, id secretstore.Identity, payload []byte) (string, error)
	ListVersions(ctx context.Context, id secretstore.Identity) iter.Seq2[secretstore.Version, error]
	DestroyVersion(ctx context.Context, id secretstore.Identity, versionID string) error
}

// Manager runs the rotate-and-retire workflow against a Store.
type Manager struct {
	store  Store
	logger *logging.Logger
	locks  *identityLocks
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for progress output.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSerializedRotation makes concurrent RotateAndRetire calls for the same
// identity on this Manager run one at a time. Rotations in other processes
// are not coordinated.
func WithSerializedRotation() ManagerOption {
	return func(m *Manager) {
		m.locks = newIdentityLocks()
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RotateOption configures one RotateAndRetire call.
type RotateOption func(*rotateConfig)

type rotateConfig struct {
	diagnostics bool
}

// WithDiagnostics captures the version listings taken during the run into
// Result.Diagnostics.
func WithDiagnostics() RotateOption {
	return func(c *rotateConfig) {
		c.diagnostics = true
	}
}

// RotateAndRetire adds payload as a new version of id and destroys the
// version immediately preceding it by ordinal, if one is ENABLED.
//
// The returned Result is never nil. err is nil only when Outcome.Succeeded;
// after a committed add, failures are wrapped in *RetirementError.
func (m *Manager) RotateAndRetire(ctx context.Context, id secretstore.Identity, payload []byte, opts ...RotateOption) (*Result, error) {
	var cfg rotateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if m.locks != nil {
		unlock := m.locks.lock(id.Parent())
		defer unlock()
	}

	res := &Result{Identity: id}
	if cfg.diagnostics {
		res.Diagnostics = &Diagnostics{}
	}

	m.rotate(ctx, id, payload, res)
	metrics.IncRotation(string(res.Outcome))

	switch res.Outcome {
	case OutcomeRotated:
		m.logger.Info("Rotated %s: version %s live, version %s destroyed", id, res.NewVersion, res.RetiredVersion)
	case OutcomeNothingToRetire:
		m.logger.Info("Rotated %s: version %s live, no older version to retire", id, res.NewVersion)
	case OutcomeRetireFailed:
		m.logger.Warn("%v", res.Err)
	case OutcomeFailed:
		m.logger.Error("Failed to add version to %s: %v", id, res.Err)
	}

	return res, res.Err
}

func (m *Manager) rotate(ctx context.Context, id secretstore.Identity, payload []byte, res *Result) {
	newVersion, err := m.store.AddVersion(ctx, id, payload)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return
	}
	res.NewVersion = newVersion
	m.logger.Debug("Added version %s to %s", newVersion, id)

	retire := func(stage Stage, target string, err error) {
		res.Outcome = OutcomeRetireFailed
		res.Err = &RetirementError{
			Identity:   id,
			NewVersion: newVersion,
			Stage:      stage,
			Target:     target,
			Err:        err,
		}
	}

	if err := ctx.Err(); err != nil {
		retire(StageList, "", err)
		return
	}

	versions, err := secretstore.CollectVersions(m.store.ListVersions(ctx, id))
	if res.Diagnostics != nil {
		res.Diagnostics.Before = versions
	}
	if err != nil {
		retire(StageList, "", err)
		return
	}

	target, ok, err := retirementTarget(versions)
	if err != nil {
		retire(StageSelect, "", err)
		return
	}
	if !ok {
		res.Outcome = OutcomeNothingToRetire
		return
	}

	if err := ctx.Err(); err != nil {
		retire(StageDestroy, target, err)
		return
	}

	m.logger.Debug("Retiring version %s of %s", target, id)
	if err := m.store.DestroyVersion(ctx, id, target); err != nil {
		retire(StageDestroy, target, err)
		return
	}
	res.Outcome = OutcomeRotated
	res.RetiredVersion = target

	if res.Diagnostics != nil {
		after, err := secretstore.CollectVersions(m.store.ListVersions(ctx, id))
		res.Diagnostics.After = after
		res.Diagnostics.AfterErr = err
	}
}

type ordinalVersion struct {
	ordinal int64
	id      string
}

// retirementTarget picks the second-highest ENABLED ordinal. Any ENABLED
// version with a non-numeric id fails the selection.
func retirementTarget(versions []secretstore.Version) (string, bool, error) {
	var enabled []ordinalVersion
	for _, v := range versions {
		if v.State != secretstore.StateEnabled {
			continue
		}
		n, err := v.Ordinal()
		if err != nil {
			return "", false, fmt.Errorf("backend returned unorderable version: %w", err)
		}
		enabled = append(enabled, ordinalVersion{ordinal: n, id: v.ID})
	}

	if len(enabled) < 2 {
		return "", false, nil
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].ordinal > enabled[j].ordinal
	})
	return enabled[1].id, true, nil
}
