package secretstore

import (
	"context"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// API is the subset of the Secret Manager client used by Store. It is
// satisfied by NewClientAPI and by the in-memory fake in tests/fakes.
type API interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest) VersionIterator
	DestroySecretVersion(ctx context.Context, req *secretmanagerpb.DestroySecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
}

// VersionIterator yields secret versions until it returns iterator.Done.
type VersionIterator interface {
	Next() (*secretmanagerpb.SecretVersion, error)
}

// ClientAPI adapts *secretmanager.Client to API.
type ClientAPI struct {
	client *secretmanager.Client
}

// NewClientAPI wraps an existing Secret Manager client. The caller keeps
// ownership of the client.
func NewClientAPI(client *secretmanager.Client) *ClientAPI {
	return &ClientAPI{client: client}
}

func (a *ClientAPI) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return a.client.AccessSecretVersion(ctx, req)
}

func (a *ClientAPI) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return a.client.AddSecretVersion(ctx, req)
}

func (a *ClientAPI) ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest) VersionIterator {
	return a.client.ListSecretVersions(ctx, req)
}

func (a *ClientAPI) DestroySecretVersion(ctx context.Context, req *secretmanagerpb.DestroySecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return a.client.DestroySecretVersion(ctx, req)
}

// Dial creates a Secret Manager client from clientOpts and a Store that owns
// it. Close the Store to release the connection.
func Dial(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Store, error) {
	client, err := secretmanager.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, AuthError{Resource: "secretmanager client", Err: err}
	}
	s := New(NewClientAPI(client), opts...)
	s.closer = client
	return s, nil
}
