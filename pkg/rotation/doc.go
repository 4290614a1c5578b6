// Package rotation publishes new secret versions and retires the version
// they replace.
//
// # Rotate and retire
//
// Manager.RotateAndRetire runs three backend calls in strict order:
//
//  1. AddVersion publishes the new payload.
//  2. ListVersions enumerates every version of the secret.
//  3. DestroyVersion retires the second-highest ENABLED ordinal, which is the
//     version that was current before step 1.
//
// A secret with fewer than two ENABLED versions after step 1 has nothing to
// retire. Each successful rotation retires exactly the version it replaced,
// so a secret that starts with no versions keeps only its newest version
// ENABLED. Older ENABLED versions are never touched.
//
// # Failure semantics
//
// The workflow is not transactional. If AddVersion fails nothing else runs.
// If listing or destroying fails after the add, the new version stays live
// and is never rolled back; the result reports OutcomeRetireFailed together
// with a *RetirementError. The version that should have been retired stays
// ENABLED; a later rotation only retires its own predecessor, so cleanup of
// the stale version is left to the caller.
//
//	res, err := mgr.RotateAndRetire(ctx, id, payload)
//	var rerr *rotation.RetirementError
//	switch {
//	case errors.As(err, &rerr):
//	    log.Printf("version %s is live, cleanup failed: %v", rerr.NewVersion, rerr.Err)
//	case err != nil:
//	    return err
//	}
//
// # Concurrency
//
// Concurrent rotations of the same secret are not coordinated by default.
// Two racing calls may both compute their retirement target from an
// interleaved listing and retire the wrong version, or try to destroy the
// same one twice. Callers must serialize rotations of one secret themselves,
// or construct the Manager WithSerializedRotation, which serializes within
// this process only.
package rotation
