// Package fakes provides test doubles for the Google Cloud clients gcpkit
// talks to.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior: seeded versions, injected gRPC errors and per-method
// overrides.
//
// Usage:
//
//	fake := fakes.NewFakeSecretManager()
//	fake.AddSecret("proj1", "api-token")
//	fake.SeedVersion("proj1", "api-token", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("v1"))
//	store := secretstore.New(fake)
//	// Test store and rotation methods...
package fakes
