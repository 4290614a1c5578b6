package commands

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/gcpkit/internal/config"
	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/pkg/drive"
	"github.com/systmms/gcpkit/pkg/rotation"
	"github.com/systmms/gcpkit/pkg/secretstore"
	"github.com/systmms/gcpkit/tests/fakes"
	"github.com/systmms/gcpkit/tests/testutil"
)

type stubResolver map[string]string

func (s stubResolver) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func newTestApp(t *testing.T) (*App, *fakes.FakeSecretManager, *testutil.TestLogger) {
	t.Helper()
	fake := fakes.NewFakeSecretManager()
	fake.AddSecret("proj1", "tok")

	logs := testutil.NewTestLogger(t, true)
	cfg := &config.Config{
		Logger:     logs.Logger(),
		Definition: &config.Definition{ProjectID: "proj1"},
	}
	app := &App{
		Config: cfg,
		StoreFactory: func(context.Context, *config.Definition, *logging.Logger) (*secretstore.Store, error) {
			return secretstore.New(fake), nil
		},
		DriveFactory: func(context.Context, *config.Definition, *logging.Logger) (*drive.Files, error) {
			t.Fatal("drive backend should not be used")
			return nil, nil
		},
		Resolver: stubResolver{},
	}
	return app, fake, logs
}

func execute(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewSecretsCommand(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)
	cmd := NewSecretsCommand(app)

	assert.Equal(t, "secrets", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	expectedNames := []string{"access", "add", "list", "destroy", "rotate"}
	for _, expected := range expectedNames {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		assert.True(t, found, "subcommand %s should exist", expected)
	}
}

func TestSecretsAddAndAccess(t *testing.T) {
	t.Parallel()

	app, fake, logs := newTestApp(t)

	out, err := execute(NewSecretsCommand(app), "first-value", "add", "tok")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
	logs.AssertContains(t, "Added version 1")

	_, err = execute(NewSecretsCommand(app), "second-value", "add", "tok")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, fake.EnabledOrdinals("proj1", "tok"))

	out, err = execute(NewSecretsCommand(app), "", "access", "tok")
	require.NoError(t, err)
	assert.Equal(t, "second-value", out)

	out, err = execute(NewSecretsCommand(app), "", "access", "tok", "--version", "1")
	require.NoError(t, err)
	assert.Equal(t, "first-value", out)

	testutil.AssertNoSecretLeak(t, logs.GetOutput(), []string{"first-value", "second-value"})
}

func TestSecretsAddFromFile(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	_, err := execute(NewSecretsCommand(app), "", "add", "tok", "--data-file", path)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fake.EnabledOrdinals("proj1", "tok"))
}

func TestSecretsAddEmptyPayload(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	_, err := execute(NewSecretsCommand(app), "", "add", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Payload is empty")
	assert.Empty(t, fake.Calls)
}

func TestSecretsAccessToFile(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("on-disk"))
	path := filepath.Join(t.TempDir(), "out")

	out, err := execute(NewSecretsCommand(app), "", "access", "tok", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	testutil.AssertFileContents(t, path, "on-disk")
}

func TestSecretsAccessErrors(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)

	_, err := execute(NewSecretsCommand(app), "", "access", "tok", "--version", "abc")
	assert.ErrorIs(t, err, secretstore.ErrInvalidArgument)

	_, err = execute(NewSecretsCommand(app), "", "access", "tok")
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
	assert.Contains(t, err.Error(), "💡")
}

func TestSecretsList(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_DESTROYED, nil)
	fake.SeedVersion("proj1", "tok", 2, secretmanagerpb.SecretVersion_DISABLED, []byte("b"))
	fake.SeedVersion("proj1", "tok", 3, secretmanagerpb.SecretVersion_ENABLED, []byte("c"))

	out, err := execute(NewSecretsCommand(app), "", "list", "tok")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.Contains(t, out, "DESTROYED")
	assert.Contains(t, out, "DISABLED")

	out, err = execute(NewSecretsCommand(app), "", "list", "tok", "--enabled")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "3"))
}

func TestSecretsDestroy(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("a"))

	_, err := execute(NewSecretsCommand(app), "", "destroy", "tok", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Equal(t, secretmanagerpb.SecretVersion_ENABLED, fake.State("proj1", "tok", 1))

	_, err = execute(NewSecretsCommand(app), "", "destroy", "tok", "1", "--yes")
	require.NoError(t, err)
	assert.Equal(t, secretmanagerpb.SecretVersion_DESTROYED, fake.State("proj1", "tok", 1))

	_, err = execute(NewSecretsCommand(app), "", "destroy", "tok", "1", "--yes")
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestSecretsRotate(t *testing.T) {
	t.Parallel()

	app, fake, logs := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("a"))
	fake.SeedVersion("proj1", "tok", 2, secretmanagerpb.SecretVersion_ENABLED, []byte("b"))

	out, err := execute(NewSecretsCommand(app), "xyz-rotated", "rotate", "tok", "--diagnostics")
	require.NoError(t, err)
	testutil.AssertLinesContain(t, out, []string{
		"secret:   projects/proj1/secrets/tok",
		"outcome:  rotated",
		"new:      3",
		"retired:  2",
		"before:",
		"after:",
		"DESTROYED",
	})
	testutil.AssertNoSecretLeak(t, out+logs.GetOutput(), []string{"xyz-rotated"})
	assert.Equal(t, []int{1, 3}, fake.EnabledOrdinals("proj1", "tok"))
}

func TestSecretsRotateJSONWithDiagnostics(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("a"))

	out, err := execute(NewSecretsCommand(app), "new", "rotate", "tok", "--json", "--diagnostics")
	require.NoError(t, err)

	var got resultJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "projects/proj1/secrets/tok", got.Secret)
	assert.Equal(t, "rotated", got.Outcome)
	assert.Equal(t, "2", got.NewVersion)
	assert.Equal(t, "1", got.RetiredVersion)
	assert.Len(t, got.Before, 2)
	assert.Len(t, got.After, 2)
	assert.Empty(t, got.Error)
}

func TestSecretsRotateRetireFailure(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	fake.SeedVersion("proj1", "tok", 1, secretmanagerpb.SecretVersion_ENABLED, []byte("a"))
	fake.AddError(secretstore.MustIdentity("proj1", "tok").VersionName("1"), fakes.GCPUnavailableError())

	out, err := execute(NewSecretsCommand(app), "new", "rotate", "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, secretstore.ErrTransient)
	assert.Contains(t, err.Error(), "Version 2 is live")
	assert.Contains(t, out, "outcome:  retire_failed")
	assert.Equal(t, []int{1, 2}, fake.EnabledOrdinals("proj1", "tok"))
}

func TestSecretsRotateSerializedFromConfig(t *testing.T) {
	t.Parallel()

	app, fake, _ := newTestApp(t)
	app.Config.Definition.Rotation.Serialize = true

	_, err := execute(NewSecretsCommand(app), "one", "rotate", "tok")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fake.EnabledOrdinals("proj1", "tok"))
}

func TestProjectResolution(t *testing.T) {
	t.Parallel()

	t.Run("flag_wins", func(t *testing.T) {
		t.Parallel()
		app, fake, _ := newTestApp(t)
		fake.AddSecret("other", "tok")
		app.Project = "other"

		_, err := execute(NewSecretsCommand(app), "v", "add", "tok")
		require.NoError(t, err)
		assert.Equal(t, []int{1}, fake.EnabledOrdinals("other", "tok"))
	})

	t.Run("resolver_fallback", func(t *testing.T) {
		t.Parallel()
		app, fake, _ := newTestApp(t)
		fake.AddSecret("meta-proj", "tok")
		app.Config.Definition.ProjectID = ""
		app.Resolver = stubResolver{"project-id": "meta-proj"}

		_, err := execute(NewSecretsCommand(app), "v", "add", "tok")
		require.NoError(t, err)
		assert.Equal(t, []int{1}, fake.EnabledOrdinals("meta-proj", "tok"))
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		app, fake, _ := newTestApp(t)
		app.Config.Definition.ProjectID = ""

		_, err := execute(NewSecretsCommand(app), "v", "add", "tok")
		require.Error(t, err)
		assert.ErrorIs(t, err, secretstore.ErrMissingProjectID)
		assert.Empty(t, fake.Calls)
	})
}

func TestMetadataCommand(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)
	app.Resolver = stubResolver{"attributes/env": "staging"}

	out, err := execute(NewMetadataCommand(app), "", "attributes/env")
	require.NoError(t, err)
	assert.Equal(t, "staging\n", out)

	_, err = execute(NewMetadataCommand(app), "", "project-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLOUD_PROJECT")
}

func TestDriveDeleteRequiresConfirmation(t *testing.T) {
	t.Parallel()

	app, _, _ := newTestApp(t)
	_, err := execute(NewDriveCommand(app), "", "delete", "file-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "gcpkit"}
	root.AddCommand(NewCompletionCommand())

	out, err := execute(root, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "gcpkit")

	_, err = execute(root, "", "completion", "tcsh")
	assert.Error(t, err)
}

func TestConfigFileDrivesCommands(t *testing.T) {
	t.Parallel()

	path := testutil.WriteTestConfig(t, `
version: 0
project_id: from-file
rotation:
  serialize: true
`)
	def := testutil.LoadTestConfig(t, path)
	assert.Equal(t, "from-file", def.ProjectID)
	assert.True(t, def.Rotation.Serialize)

	app, fake, _ := newTestApp(t)
	fake.AddSecret("from-file", "tok")
	app.Config = &config.Config{Path: path, Logger: logging.Discard()}

	_, err := execute(NewSecretsCommand(app), "v", "rotate", "tok")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fake.EnabledOrdinals("from-file", "tok"))
}

type sealedPayload struct{ err error }

func (p sealedPayload) Use(func([]byte) error) error { return p.err }

func TestRotatePayloadOpenFailure(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSecretManager()
	fake.AddSecret("proj1", "tok")
	mgr := rotation.NewManager(secretstore.New(fake))

	res, err := rotatePayload(context.Background(), mgr, secretstore.MustIdentity("proj1", "tok"),
		sealedPayload{err: stderrors.New("enclave: decryption failed")})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "Nothing was published")
	assert.Empty(t, fake.Calls)
}
