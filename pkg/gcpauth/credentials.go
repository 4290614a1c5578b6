// Package gcpauth resolves Google Cloud credentials and project settings for
// the secretstore and drive clients.
package gcpauth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/systmms/gcpkit/pkg/secretstore"
)

// CloudPlatformScope is the scope requested when none is configured.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// CredentialProvider yields credentials for Google API clients.
type CredentialProvider interface {
	Resolve(ctx context.Context) (*google.Credentials, error)
}

// DefaultCredentials resolves Application Default Credentials, optionally
// from an explicit service account key file, and optionally impersonates a
// service account on top of them.
type DefaultCredentials struct {
	// KeyFile is a service account JSON key. A leading "~/" is expanded.
	KeyFile string
	// ImpersonateAccount is the email of a service account to impersonate.
	ImpersonateAccount string
	// Scopes defaults to CloudPlatformScope.
	Scopes []string
}

// Resolve implements CredentialProvider. Every failure is an AuthError.
func (d DefaultCredentials) Resolve(ctx context.Context) (*google.Credentials, error) {
	scopes := d.Scopes
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}

	creds, err := d.base(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if d.ImpersonateAccount == "" {
		return creds, nil
	}

	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: d.ImpersonateAccount,
		Scopes:          scopes,
	}, option.WithCredentials(creds))
	if err != nil {
		return nil, secretstore.AuthError{
			Resource: d.ImpersonateAccount,
			Err:      fmt.Errorf("failed to create impersonated credentials: %w", err),
		}
	}
	return &google.Credentials{ProjectID: creds.ProjectID, TokenSource: ts}, nil
}

func (d DefaultCredentials) base(ctx context.Context, scopes []string) (*google.Credentials, error) {
	if d.KeyFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, secretstore.AuthError{Resource: "application default credentials", Err: err}
		}
		return creds, nil
	}

	path, err := ExpandHome(d.KeyFile)
	if err != nil {
		return nil, secretstore.AuthError{Resource: d.KeyFile, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, secretstore.AuthError{Resource: path, Err: fmt.Errorf("failed to read key file: %w", err)}
	}
	//nolint:staticcheck // key files come from local configuration
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, secretstore.AuthError{Resource: path, Err: fmt.Errorf("failed to parse key file: %w", err)}
	}
	return creds, nil
}

// ClientOptions resolves p and returns the options for a Google API client.
func ClientOptions(ctx context.Context, p CredentialProvider) ([]option.ClientOption, error) {
	creds, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
