// Package secretstore provides single-call accessors to Google Cloud Secret
// Manager versions.
//
// A secret is addressed by an Identity (project id and secret id) and holds
// an ordered series of immutable versions. Updating a secret always means
// adding a new version; versions are never edited in place.
//
// # Operations
//
// Store exposes four operations, each one round trip to the backend:
//
//   - FetchVersion reads a version's payload. The "latest" alias is resolved
//     by the backend.
//   - AddVersion publishes a new ENABLED version and returns its ordinal.
//   - ListVersions lazily enumerates version metadata in backend order.
//   - DestroyVersion irreversibly destroys one version.
//
// # Errors
//
// Backend failures are classified into AuthError, NotFoundError,
// TransientError and InvalidArgumentError, each matching a sentinel with
// errors.Is:
//
//	_, err := store.FetchVersion(ctx, id, "latest")
//	if errors.Is(err, secretstore.ErrNotFound) {
//	    // the secret has no enabled version
//	}
//
// # Version ordinals
//
// Secret Manager assigns version ids as increasing integers, but its schema
// does not promise it. Code that orders versions goes through ParseOrdinal,
// which rejects anything non-numeric with an InvalidArgumentError rather than
// guessing.
//
// # Retries
//
// By default every call is a single attempt. WithRetry enables bounded
// exponential backoff for transient failures of FetchVersion, ListVersions
// and DestroyVersion. AddVersion is never retried.
package secretstore
