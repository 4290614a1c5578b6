package fakes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/systmms/gcpkit/pkg/secretstore"
)

// FakeSecretManager is an in-memory Secret Manager implementing
// secretstore.API. Version ids are assigned as increasing ordinals per
// secret, "latest" resolves to the highest ENABLED ordinal, and errors are
// real gRPC status errors so classification is exercised.
type FakeSecretManager struct {
	mu sync.Mutex

	// Secrets holds provisioned secret parents (projects/X/secrets/Y).
	Secrets map[string]bool
	// Versions maps version resource names to their data.
	Versions map[string]*GCPSecretVersionData
	// Errors maps resource names to errors returned by any call on them.
	Errors map[string]error
	// ListOrder overrides the order ListSecretVersions returns names in.
	// The default is newest first, like the real backend.
	ListOrder func(names []string) []string
	// Calls records every call as "<method> <resource>".
	Calls []string

	AccessSecretVersionFunc  func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersionFunc     func(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	ListSecretVersionsFunc   func(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest) secretstore.VersionIterator
	DestroySecretVersionFunc func(ctx context.Context, req *secretmanagerpb.DestroySecretVersionRequest) (*secretmanagerpb.SecretVersion, error)

	next map[string]int
}

// GCPSecretVersionData holds version-specific data for a fake secret.
type GCPSecretVersionData struct {
	Name        string
	Ordinal     int
	State       secretmanagerpb.SecretVersion_State
	CreateTime  *timestamppb.Timestamp
	DestroyTime *timestamppb.Timestamp
	Data        []byte
}

// NewFakeSecretManager creates an empty fake backend.
func NewFakeSecretManager() *FakeSecretManager {
	return &FakeSecretManager{
		Secrets:  make(map[string]bool),
		Versions: make(map[string]*GCPSecretVersionData),
		Errors:   make(map[string]error),
		next:     make(map[string]int),
	}
}

// AddSecret provisions an empty secret container.
func (f *FakeSecretManager) AddSecret(projectID, secretID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[parentName(projectID, secretID)] = true
}

// SeedVersion stores a version with an explicit ordinal and state. Later
// AddSecretVersion calls continue after the highest seeded ordinal.
func (f *FakeSecretManager) SeedVersion(projectID, secretID string, ordinal int, state secretmanagerpb.SecretVersion_State, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent := parentName(projectID, secretID)
	f.Secrets[parent] = true
	name := fmt.Sprintf("%s/versions/%d", parent, ordinal)
	f.Versions[name] = &GCPSecretVersionData{
		Name:       name,
		Ordinal:    ordinal,
		State:      state,
		CreateTime: timestamppb.New(time.Now()),
		Data:       append([]byte(nil), data...),
	}
	if ordinal > f.next[parent] {
		f.next[parent] = ordinal
	}
}

// AddError configures an error for every call on resourceName.
func (f *FakeSecretManager) AddError(resourceName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[resourceName] = err
}

// ClearError removes a configured error.
func (f *FakeSecretManager) ClearError(resourceName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Errors, resourceName)
}

// State returns the state of one version, or STATE_UNSPECIFIED if absent.
func (f *FakeSecretManager) State(projectID, secretID string, ordinal int) secretmanagerpb.SecretVersion_State {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Versions[fmt.Sprintf("%s/versions/%d", parentName(projectID, secretID), ordinal)]
	if !ok {
		return secretmanagerpb.SecretVersion_STATE_UNSPECIFIED
	}
	return v.State
}

// EnabledOrdinals returns the ENABLED ordinals of a secret in ascending order.
func (f *FakeSecretManager) EnabledOrdinals(projectID, secretID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := parentName(projectID, secretID) + "/versions/"
	var out []int
	for name, v := range f.Versions {
		if strings.HasPrefix(name, prefix) && v.State == secretmanagerpb.SecretVersion_ENABLED {
			out = append(out, v.Ordinal)
		}
	}
	sort.Ints(out)
	return out
}

// CallsTo returns the recorded calls for one method name.
func (f *FakeSecretManager) CallsTo(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, method+" ") {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeSecretManager) record(method, resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, method+" "+resource)
}

// AccessSecretVersion mocks the AccessSecretVersion operation.
func (f *FakeSecretManager) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.record("AccessSecretVersion", req.Name)
	if f.AccessSecretVersionFunc != nil {
		return f.AccessSecretVersionFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Name]; exists {
		return nil, err
	}

	name := req.Name
	if strings.HasSuffix(name, "/versions/latest") {
		parent := strings.TrimSuffix(name, "/versions/latest")
		latest := f.latestEnabledLocked(parent)
		if latest == nil {
			return nil, status.Errorf(codes.NotFound, "Secret [%s] has no enabled versions", parent)
		}
		name = latest.Name
	}

	version, exists := f.Versions[name]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found", req.Name)
	}
	if version.State != secretmanagerpb.SecretVersion_ENABLED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret Version [%s] is in %s state", name, version.State)
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Name: version.Name,
		Payload: &secretmanagerpb.SecretPayload{
			Data: append([]byte(nil), version.Data...),
		},
	}, nil
}

// AddSecretVersion mocks the AddSecretVersion operation.
func (f *FakeSecretManager) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.record("AddSecretVersion", req.Parent)
	if f.AddSecretVersionFunc != nil {
		return f.AddSecretVersionFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Parent]; exists {
		return nil, err
	}
	if !f.Secrets[req.Parent] {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.Parent)
	}
	if len(req.GetPayload().GetData()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "payload must not be empty")
	}

	f.next[req.Parent]++
	ordinal := f.next[req.Parent]
	name := fmt.Sprintf("%s/versions/%d", req.Parent, ordinal)
	version := &GCPSecretVersionData{
		Name:       name,
		Ordinal:    ordinal,
		State:      secretmanagerpb.SecretVersion_ENABLED,
		CreateTime: timestamppb.New(time.Now()),
		Data:       append([]byte(nil), req.Payload.Data...),
	}
	f.Versions[name] = version

	return version.proto(), nil
}

// ListSecretVersions mocks the ListSecretVersions operation.
func (f *FakeSecretManager) ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest) secretstore.VersionIterator {
	f.record("ListSecretVersions", req.Parent)
	if f.ListSecretVersionsFunc != nil {
		return f.ListSecretVersionsFunc(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Parent]; exists {
		return NewFakeVersionIterator(nil, err)
	}
	if !f.Secrets[req.Parent] {
		return NewFakeVersionIterator(nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.Parent))
	}

	prefix := req.Parent + "/versions/"
	var names []string
	for name := range f.Versions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return f.Versions[names[i]].Ordinal > f.Versions[names[j]].Ordinal
	})
	if f.ListOrder != nil {
		names = f.ListOrder(names)
	}

	versions := make([]*secretmanagerpb.SecretVersion, 0, len(names))
	for _, name := range names {
		versions = append(versions, f.Versions[name].proto())
	}
	return NewFakeVersionIterator(versions, nil)
}

// DestroySecretVersion mocks the DestroySecretVersion operation.
func (f *FakeSecretManager) DestroySecretVersion(ctx context.Context, req *secretmanagerpb.DestroySecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.record("DestroySecretVersion", req.Name)
	if f.DestroySecretVersionFunc != nil {
		return f.DestroySecretVersionFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Name]; exists {
		return nil, err
	}

	version, exists := f.Versions[req.Name]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found", req.Name)
	}
	if version.State == secretmanagerpb.SecretVersion_DESTROYED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret Version [%s] is in DESTROYED state", req.Name)
	}

	version.State = secretmanagerpb.SecretVersion_DESTROYED
	version.DestroyTime = timestamppb.New(time.Now())
	version.Data = nil

	return version.proto(), nil
}

func (f *FakeSecretManager) latestEnabledLocked(parent string) *GCPSecretVersionData {
	var latest *GCPSecretVersionData
	prefix := parent + "/versions/"
	for name, v := range f.Versions {
		if !strings.HasPrefix(name, prefix) || v.State != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		if latest == nil || v.Ordinal > latest.Ordinal {
			latest = v
		}
	}
	return latest
}

func (v *GCPSecretVersionData) proto() *secretmanagerpb.SecretVersion {
	return &secretmanagerpb.SecretVersion{
		Name:        v.Name,
		State:       v.State,
		CreateTime:  v.CreateTime,
		DestroyTime: v.DestroyTime,
	}
}

func parentName(projectID, secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", projectID, secretID)
}

// FakeVersionIterator yields a fixed list of versions, then err (or
// iterator.Done when err is nil).
type FakeVersionIterator struct {
	versions []*secretmanagerpb.SecretVersion
	index    int
	err      error
}

// NewFakeVersionIterator creates an iterator over versions that ends with err.
func NewFakeVersionIterator(versions []*secretmanagerpb.SecretVersion, err error) *FakeVersionIterator {
	return &FakeVersionIterator{versions: versions, err: err}
}

// Next returns the next version in the iteration.
func (it *FakeVersionIterator) Next() (*secretmanagerpb.SecretVersion, error) {
	if it.index < len(it.versions) {
		v := it.versions[it.index]
		it.index++
		return v, nil
	}
	if it.err != nil {
		return nil, it.err
	}
	return nil, iterator.Done
}

// VersionProto builds a listing entry for hand-written iterators.
func VersionProto(projectID, secretID, versionID string, state secretmanagerpb.SecretVersion_State) *secretmanagerpb.SecretVersion {
	return &secretmanagerpb.SecretVersion{
		Name:  parentName(projectID, secretID) + "/versions/" + versionID,
		State: state,
	}
}

// GCP error helpers

// GCPNotFoundError creates a not found status error.
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a permission denied status error.
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}

// GCPUnauthenticatedError creates an unauthenticated status error.
func GCPUnauthenticatedError(message string) error {
	return status.Error(codes.Unauthenticated, message)
}

// GCPInvalidArgumentError creates an invalid argument status error.
func GCPInvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

// GCPUnavailableError creates an unavailable (transient) status error.
func GCPUnavailableError() error {
	return status.Error(codes.Unavailable, "service unavailable")
}

// GCPResourceExhaustedError creates a resource exhausted (throttled) status error.
func GCPResourceExhaustedError() error {
	return status.Errorf(codes.ResourceExhausted, "Quota exceeded")
}

// Ordinal formats an ordinal as a version id.
func Ordinal(n int) string {
	return strconv.Itoa(n)
}
