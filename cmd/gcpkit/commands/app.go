package commands

import (
	"context"
	"io"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"

	"github.com/systmms/gcpkit/internal/config"
	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/internal/metrics"
	"github.com/systmms/gcpkit/internal/secure"
	"github.com/systmms/gcpkit/pkg/drive"
	"github.com/systmms/gcpkit/pkg/gcpauth"
	"github.com/systmms/gcpkit/pkg/rotation"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// App carries the state shared by every command: configuration, the global
// --project flag and the backend constructors.
type App struct {
	Config  *config.Config
	Project string

	// StoreFactory and DriveFactory build backend clients from the loaded
	// configuration. Tests replace them with fakes.
	StoreFactory func(ctx context.Context, def *config.Definition, logger *logging.Logger) (*secretstore.Store, error)
	DriveFactory func(ctx context.Context, def *config.Definition, logger *logging.Logger) (*drive.Files, error)

	// Resolver looks up project metadata when no project id is configured.
	// Nil means the environment, then the metadata server when on GCE.
	Resolver gcpauth.MetadataResolver

	metricsServer *metrics.Server
}

// NewApp returns an App that dials real Google Cloud clients.
func NewApp(cfg *config.Config) *App {
	return &App{
		Config:       cfg,
		StoreFactory: dialStore,
		DriveFactory: dialDrive,
	}
}

func defaultResolver() gcpauth.MetadataResolver {
	chain := gcpauth.ChainResolver{gcpauth.DefaultEnvResolver()}
	if metadata.OnGCE() {
		chain = append(chain, gcpauth.NewComputeMetadata())
	}
	return chain
}

func dialStore(ctx context.Context, def *config.Definition, logger *logging.Logger) (*secretstore.Store, error) {
	clientOpts, err := gcpauth.ClientOptions(ctx, def.Credentials())
	if err != nil {
		return nil, err
	}
	return secretstore.Dial(ctx, clientOpts,
		secretstore.WithLogger(logger),
		secretstore.WithRetry(def.RetryPolicy()),
		secretstore.WithCallTimeout(def.CallTimeout()),
	)
}

func dialDrive(ctx context.Context, def *config.Definition, logger *logging.Logger) (*drive.Files, error) {
	clientOpts, err := gcpauth.ClientOptions(ctx, def.Credentials())
	if err != nil {
		return nil, err
	}
	return drive.Dial(ctx, logger, clientOpts...)
}

func (a *App) logger() *logging.Logger {
	if a.Config.Logger == nil {
		a.Config.Logger = logging.New(false, false)
	}
	return a.Config.Logger
}

func (a *App) definition() (*config.Definition, error) {
	if a.Config.Definition != nil {
		return a.Config.Definition, nil
	}
	if err := a.Config.Load(); err != nil {
		return nil, err
	}
	return a.Config.Definition, nil
}

// identity resolves the project id and builds the identity of secretID.
func (a *App) identity(ctx context.Context, secretID string) (secretstore.Identity, error) {
	def, err := a.definition()
	if err != nil {
		return secretstore.Identity{}, err
	}
	explicit := a.Project
	if explicit == "" {
		explicit = def.ProjectID
	}
	if a.Resolver == nil && explicit == "" {
		a.Resolver = defaultResolver()
	}
	projectID, err := gcpauth.ResolveProjectID(ctx, explicit, a.Resolver)
	if err != nil {
		return secretstore.Identity{}, gkerrors.GCPError("Resolving project id", err)
	}
	return secretstore.NewIdentity(projectID, secretID)
}

func (a *App) store(ctx context.Context) (*secretstore.Store, error) {
	def, err := a.definition()
	if err != nil {
		return nil, err
	}
	if err := a.startMetrics(def); err != nil {
		return nil, err
	}
	s, err := a.StoreFactory(ctx, def, a.logger())
	if err != nil {
		return nil, gkerrors.GCPError("Connecting to Secret Manager", err)
	}
	return s, nil
}

func (a *App) manager(store *secretstore.Store) (*rotation.Manager, error) {
	def, err := a.definition()
	if err != nil {
		return nil, err
	}
	opts := []rotation.ManagerOption{rotation.WithManagerLogger(a.logger())}
	if def.Rotation.Serialize {
		opts = append(opts, rotation.WithSerializedRotation())
	}
	return rotation.NewManager(store, opts...), nil
}

func (a *App) files(ctx context.Context) (*drive.Files, error) {
	def, err := a.definition()
	if err != nil {
		return nil, err
	}
	f, err := a.DriveFactory(ctx, def, a.logger())
	if err != nil {
		return nil, gkerrors.GCPError("Connecting to Drive", err)
	}
	return f, nil
}

func (a *App) startMetrics(def *config.Definition) error {
	if a.metricsServer != nil {
		return nil
	}
	srv := metrics.NewServer(def.MetricsServer(), a.logger())
	if err := srv.Start(); err != nil {
		return gkerrors.ConfigError{
			Field:      "metrics.listen",
			Value:      def.MetricsServer().Listen,
			Message:    "failed to start metrics server",
			Suggestion: "Pick a free address or set metrics.enabled to false",
			Err:        err,
		}
	}
	a.metricsServer = srv
	return nil
}

// Shutdown stops background services started by commands.
func (a *App) Shutdown() {
	if a.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.metricsServer.Stop(ctx)
	a.metricsServer = nil
}

// readPayload reads a payload from path, or from in when path is "" or "-".
func readPayload(path string, in io.Reader) (*secure.Payload, error) {
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, gkerrors.UserError{
				Message:    "Failed to open payload file",
				Suggestion: "Check the --data-file path",
				Err:        err,
			}
		}
		defer f.Close()
		in = f
	}
	p, err := secure.ReadPayload(in, secure.MaxPayloadSize)
	if err != nil {
		return nil, gkerrors.UserError{
			Message:    "Failed to read payload",
			Suggestion: "Secret Manager payloads are limited to 64 KiB",
			Err:        err,
		}
	}
	if p.Size() == 0 {
		return nil, gkerrors.UserError{
			Message:    "Payload is empty",
			Suggestion: "Pipe the new value on stdin or pass --data-file",
		}
	}
	return p, nil
}
