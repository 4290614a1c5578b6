package gcpauth

import (
	"context"
	"errors"
	"maps"
	"os"
	"slices"
	"strings"

	"cloud.google.com/go/compute/metadata"

	"github.com/systmms/gcpkit/pkg/secretstore"
)

// ProjectIDKey is the project metadata key holding the project id.
const ProjectIDKey = "project-id"

// MetadataResolver looks up a project metadata value. ok is false when the
// key is not defined; err is reserved for lookups that could not complete.
type MetadataResolver interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// ComputeMetadata reads project metadata from the GCE metadata server. The
// GCE_METADATA_HOST environment variable overrides the server address.
type ComputeMetadata struct {
	client *metadata.Client
}

// NewComputeMetadata creates a resolver using the default HTTP client.
func NewComputeMetadata() *ComputeMetadata {
	return &ComputeMetadata{client: metadata.NewClient(nil)}
}

// Get implements MetadataResolver for the computeMetadata/v1/project/{key}
// endpoint.
func (c *ComputeMetadata) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.GetWithContext(ctx, "project/"+key)
	if err != nil {
		var nde metadata.NotDefinedError
		if errors.As(err, &nde) {
			return "", false, nil
		}
		return "", false, secretstore.TransientError{Resource: "metadata project/" + key, Err: err}
	}
	v = strings.TrimSpace(v)
	return v, v != "", nil
}

// Sources describes where Get looks.
func (c *ComputeMetadata) Sources() []string {
	return []string{"metadata server"}
}

// EnvResolver maps metadata keys to environment variables, checked in order.
type EnvResolver struct {
	Vars map[string][]string
}

// DefaultEnvResolver knows the environment variables gcloud and the client
// libraries use for the project id.
func DefaultEnvResolver() EnvResolver {
	return EnvResolver{Vars: map[string][]string{
		ProjectIDKey: {"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"},
	}}
}

// Get implements MetadataResolver.
func (e EnvResolver) Get(_ context.Context, key string) (string, bool, error) {
	for _, name := range e.Vars[key] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Sources describes where Get looks, ordered by key and then by lookup
// order within a key.
func (e EnvResolver) Sources() []string {
	var out []string
	for _, key := range slices.Sorted(maps.Keys(e.Vars)) {
		for _, name := range e.Vars[key] {
			out = append(out, "$"+name)
		}
	}
	return out
}

// ChainResolver asks each resolver in turn and returns the first defined
// value. A resolver that fails is skipped; if nothing is found the first
// failure is returned.
type ChainResolver []MetadataResolver

// Get implements MetadataResolver.
func (c ChainResolver) Get(ctx context.Context, key string) (string, bool, error) {
	var firstErr error
	for _, r := range c {
		v, ok, err := r.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, firstErr
}

// Sources describes where Get looks.
func (c ChainResolver) Sources() []string {
	var out []string
	for _, r := range c {
		out = append(out, sourcesOf(r)...)
	}
	return out
}

// ResolveProjectID returns explicit when set, otherwise the project id known
// to r. A failed lookup counts as absent.
func ResolveProjectID(ctx context.Context, explicit string, r MetadataResolver) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, nil
	}
	if r != nil {
		if v, ok, err := r.Get(ctx, ProjectIDKey); err == nil && ok {
			return v, nil
		}
	}
	return "", secretstore.MissingProjectIDError{Sources: append([]string{"--project", "config project_id"}, sourcesOf(r)...)}
}

func sourcesOf(r MetadataResolver) []string {
	if s, ok := r.(interface{ Sources() []string }); ok {
		return s.Sources()
	}
	return nil
}
