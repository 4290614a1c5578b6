package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// NewSecretsCommand creates the parent 'secrets' command
func NewSecretsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Read, publish and retire Secret Manager versions",
		Long: `Work with the versions of a Google Cloud Secret Manager secret.

A secret holds an ordered series of immutable versions. Updating a secret
always adds a new version; 'rotate' also destroys the version it replaced.

Examples:
  gcpkit secrets access api-token
  echo -n "s3cret" | gcpkit secrets add api-token
  gcpkit secrets list api-token
  gcpkit secrets rotate api-token --data-file ./new-token
  gcpkit secrets destroy api-token 3 --yes`,
	}

	cmd.AddCommand(
		NewSecretsAccessCommand(app),
		NewSecretsAddCommand(app),
		NewSecretsListCommand(app),
		NewSecretsDestroyCommand(app),
		NewSecretsRotateCommand(app),
	)

	return cmd
}

func NewSecretsAccessCommand(app *App) *cobra.Command {
	var (
		version string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "access SECRET",
		Short: "Print the payload of a secret version",
		Long: `Print the payload of a secret version to stdout, or to a file with --output.

Examples:
  gcpkit secrets access api-token
  gcpkit secrets access api-token --version 4
  export TOKEN=$(gcpkit secrets access api-token)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := app.identity(ctx, args[0])
			if err != nil {
				return err
			}
			store, err := app.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			v, err := store.FetchVersion(ctx, id, version)
			if err != nil {
				return gkerrors.GCPError(fmt.Sprintf("Accessing %s version %s", id.SecretID(), version), err)
			}
			app.logger().Debug("Resolved %s to version %s", id, v.ID)

			if output == "" {
				_, err = cmd.OutOrStdout().Write(v.Payload)
				return err
			}
			if err := os.WriteFile(output, v.Payload, 0o600); err != nil {
				return gkerrors.UserError{
					Message:    "Failed to write payload",
					Suggestion: "Check the --output path and permissions",
					Err:        err,
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", secretstore.LatestVersion, "Version ordinal or 'latest'")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the payload to a file (mode 0600) instead of stdout")

	return cmd
}

func NewSecretsAddCommand(app *App) *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "add SECRET",
		Short: "Publish a new secret version",
		Long: `Publish a new ENABLED version read from stdin or --data-file. Older versions
stay ENABLED; use 'rotate' to retire the previous one.

Examples:
  echo -n "s3cret" | gcpkit secrets add api-token
  gcpkit secrets add api-token --data-file ./token.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := app.identity(ctx, args[0])
			if err != nil {
				return err
			}
			payload, err := readPayload(dataFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer payload.Destroy()

			store, err := app.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var versionID string
			err = payload.Use(func(plaintext []byte) error {
				var aerr error
				versionID, aerr = store.AddVersion(ctx, id, plaintext)
				return aerr
			})
			if err != nil {
				return gkerrors.GCPError("Adding version to "+id.SecretID(), err)
			}

			app.logger().Info("Added version %s to %s", versionID, id)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "", "Read the payload from a file ('-' for stdin)")

	return cmd
}

func NewSecretsListCommand(app *App) *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list SECRET",
		Short: "List the versions of a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := app.identity(ctx, args[0])
			if err != nil {
				return err
			}
			store, err := app.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "VERSION\tSTATE\tCREATED")
			for v, err := range store.ListVersions(ctx, id) {
				if err != nil {
					_ = w.Flush()
					return gkerrors.GCPError("Listing versions of "+id.SecretID(), err)
				}
				if enabledOnly && v.State != secretstore.StateEnabled {
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.State, formatTime(v.CreateTime))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only show ENABLED versions")

	return cmd
}

func NewSecretsDestroyCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy SECRET VERSION",
		Short: "Irreversibly destroy a secret version",
		Long: `Irreversibly destroy one secret version. VERSION is an ordinal or 'latest'.

Examples:
  gcpkit secrets destroy api-token 3 --yes`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return gkerrors.UserError{
					Message:    "Refusing to destroy without confirmation",
					Suggestion: "Destroyed versions cannot be recovered. Re-run with --yes",
				}
			}
			ctx := cmd.Context()
			id, err := app.identity(ctx, args[0])
			if err != nil {
				return err
			}
			store, err := app.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DestroyVersion(ctx, id, args[1]); err != nil {
				return gkerrors.GCPError(fmt.Sprintf("Destroying %s version %s", id.SecretID(), args[1]), err)
			}
			app.logger().Info("Destroyed version %s of %s", args[1], id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destroy")

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
