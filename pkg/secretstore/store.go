package secretstore

import (
	"context"
	"errors"
	"hash/crc32"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/internal/metrics"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Store is a stateless accessor to the Secret Manager backend. Every method
// is one logical round trip; only transient failures of idempotent calls are
// retried, and only when a RetryPolicy is configured.
//
// Store is safe for concurrent use.
type Store struct {
	api     API
	logger  *logging.Logger
	retry   RetryPolicy
	timeout time.Duration
	closer  io.Closer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output. Payloads are never logged.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRetry enables bounded retry of transient failures.
func WithRetry(policy RetryPolicy) Option {
	return func(s *Store) {
		s.retry = policy
	}
}

// WithCallTimeout bounds each backend call. Zero means no extra deadline
// beyond the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New creates a Store over api.
func New(api API, opts ...Option) *Store {
	s := &Store{
		api:    api,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying client if the Store owns it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func observe(operation string, start time.Time, err error) {
	metrics.ObserveStoreCall(operation, ResultLabel(err), time.Since(start))
}

// FetchVersion returns a version with its payload. versionID is either an
// ordinal or LatestVersion; resolving latest is left to the backend and the
// returned Version carries the resolved ordinal.
func (s *Store) FetchVersion(ctx context.Context, id Identity, versionID string) (v Version, err error) {
	if versionID != LatestVersion {
		if _, err := ParseOrdinal(versionID); err != nil {
			return Version{}, err
		}
	}

	name := id.VersionName(versionID)
	start := time.Now()
	defer func() { observe("access", start, err) }()

	s.logger.Debug("Accessing secret version: %s", name)

	var resp *secretmanagerpb.AccessSecretVersionResponse
	err = s.retry.retry(ctx, func(attempt int) error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		r, rerr := s.api.AccessSecretVersion(callCtx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if rerr != nil {
			rerr = Classify(name, rerr)
			s.logger.Debug("Access %s failed (attempt %d): %v", name, attempt, rerr)
			return rerr
		}
		if p := r.GetPayload(); p != nil && p.DataCrc32C != nil {
			if sum := int64(crc32.Checksum(p.GetData(), castagnoli)); sum != p.GetDataCrc32C() {
				return TransientError{Resource: name, Err: errors.New("payload checksum mismatch")}
			}
		}
		resp = r
		return nil
	})
	if err != nil {
		return Version{}, err
	}

	resolved := versionID
	if resp.GetName() != "" {
		if resolved, err = VersionIDFromName(resp.GetName()); err != nil {
			return Version{}, err
		}
	}

	data := resp.GetPayload().GetData()
	if data == nil {
		data = []byte{}
	}

	return Version{
		ID:      resolved,
		State:   StateEnabled,
		Payload: data,
	}, nil
}

// AddVersion publishes payload as a new ENABLED version and returns its
// ordinal. It is attempted exactly once.
func (s *Store) AddVersion(ctx context.Context, id Identity, payload []byte) (versionID string, err error) {
	if len(payload) == 0 {
		return "", InvalidArgumentError{Field: "payload", Message: "must not be empty"}
	}

	parent := id.Parent()
	start := time.Now()
	defer func() { observe("add", start, err) }()

	s.logger.Debug("Adding secret version to %s (%d bytes)", parent, len(payload))

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	sum := int64(crc32.Checksum(payload, castagnoli))
	resp, err := s.api.AddSecretVersion(callCtx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: parent,
		Payload: &secretmanagerpb.SecretPayload{
			Data:       payload,
			DataCrc32C: &sum,
		},
	})
	if err != nil {
		return "", Classify(parent, err)
	}

	versionID, err = VersionIDFromName(resp.GetName())
	if err != nil {
		return "", err
	}

	s.logger.Debug("Added secret version: %s", resp.GetName())
	return versionID, nil
}

// ListVersions enumerates every version of the secret in backend order,
// without payloads. The sequence is lazy and can be ranged over once; a
// second range yields nothing. Iteration stops at the first error, which is
// yielded with a zero Version.
//
// A transient failure is retried only before the first version has been
// yielded, so callers never see duplicates.
func (s *Store) ListVersions(ctx context.Context, id Identity) iter.Seq2[Version, error] {
	var used atomic.Bool
	parent := id.Parent()

	return func(yield func(Version, error) bool) {
		if used.Swap(true) {
			return
		}

		var err error
		start := time.Now()
		defer func() { observe("list", start, err) }()

		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		s.logger.Debug("Listing secret versions of %s", parent)

		req := &secretmanagerpb.ListSecretVersionsRequest{Parent: parent}
		it := s.api.ListSecretVersions(callCtx, req)
		bo := s.retry.backoff()
		attempt := 1
		yielded := false

		for {
			pb, nerr := it.Next()
			if errors.Is(nerr, iterator.Done) {
				return
			}
			if nerr != nil {
				err = Classify(parent, nerr)
				if !yielded && IsTransient(err) && attempt < s.retry.attempts() {
					s.logger.Debug("List %s failed (attempt %d): %v", parent, attempt, err)
					if serr := gax.Sleep(callCtx, bo.Pause()); serr == nil {
						attempt++
						err = nil
						it = s.api.ListSecretVersions(callCtx, req)
						continue
					}
				}
				yield(Version{}, err)
				return
			}

			var v Version
			if v, err = versionFromProto(pb); err != nil {
				yield(Version{}, err)
				return
			}
			yielded = true
			if !yield(v, nil) {
				return
			}
		}
	}
}

// CollectVersions drains a version sequence into a slice.
func CollectVersions(seq iter.Seq2[Version, error]) ([]Version, error) {
	var out []Version
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// DestroyVersion irreversibly destroys one version. LatestVersion is resolved
// to its ordinal first; the destroy itself is always issued by ordinal. A
// version that is absent or already destroyed is a NotFoundError.
func (s *Store) DestroyVersion(ctx context.Context, id Identity, versionID string) (err error) {
	if versionID == LatestVersion {
		latest, ferr := s.FetchVersion(ctx, id, LatestVersion)
		if ferr != nil {
			return ferr
		}
		s.logger.Debug("Resolved latest version of %s to %s", id, latest.ID)
		versionID = latest.ID
	}
	if _, err := ParseOrdinal(versionID); err != nil {
		return err
	}

	name := id.VersionName(versionID)
	start := time.Now()
	defer func() { observe("destroy", start, err) }()

	s.logger.Debug("Destroying secret version: %s", name)

	return s.retry.retry(ctx, func(attempt int) error {
		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		_, derr := s.api.DestroySecretVersion(callCtx, &secretmanagerpb.DestroySecretVersionRequest{Name: name})
		if derr == nil {
			return nil
		}
		if attempt > 1 {
			switch status.Code(derr) {
			case codes.FailedPrecondition, codes.NotFound:
				// An earlier attempt destroyed it and only the response was lost.
				s.logger.Debug("Destroy %s already applied by attempt %d", name, attempt-1)
				return nil
			}
		}
		if status.Code(derr) == codes.FailedPrecondition {
			// The backend reports an already-destroyed version this way.
			return NotFoundError{Resource: name, Err: derr}
		}
		derr = Classify(name, derr)
		s.logger.Debug("Destroy %s failed (attempt %d): %v", name, attempt, derr)
		return derr
	})
}

// ResultLabel maps an error onto a short metrics label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
