package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/pkg/rotation"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

func NewSecretsRotateCommand(app *App) *cobra.Command {
	var (
		dataFile    string
		diagnostics bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "rotate SECRET",
		Short: "Publish a new version and destroy the one it replaces",
		Long: `Publish a new version read from stdin or --data-file, then destroy the
ENABLED version immediately preceding it. Versions older than that, and
DISABLED versions, are left alone.

If the new version was published but retiring the old one failed, the new
version stays live and the command exits non-zero. Nothing is rolled back.

Concurrent rotations of the same secret from different processes are not
coordinated and can retire the wrong version.

Examples:
  # Rotate from a file
  gcpkit secrets rotate api-token --data-file ./new-token

  # Rotate from a generator and show the version listings
  openssl rand -hex 32 | gcpkit secrets rotate api-token --diagnostics`,
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

			mgr, err := app.manager(store)
			if err != nil {
				return err
			}

			def, err := app.definition()
			if err != nil {
				return err
			}
			var opts []rotation.RotateOption
			if diagnostics || def.Rotation.Diagnostics {
				opts = append(opts, rotation.WithDiagnostics())
			}

			res, err := rotatePayload(ctx, mgr, id, payload, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeResultJSON(out, res); err != nil {
					return err
				}
			} else {
				writeResultText(out, res)
			}

			if res.Err != nil {
				return gkerrors.GCPError("Rotating "+id.SecretID(), res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "", "Read the new payload from a file ('-' for stdin)")
	cmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "Show version listings taken during the rotation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

// payloadSource is satisfied by *secure.Payload.
type payloadSource interface {
	Use(fn func(plaintext []byte) error) error
}

// rotatePayload runs one rotation with the decrypted payload. A non-nil
// error means the payload could not be opened and nothing was sent; backend
// failures are reported through the returned Result.
func rotatePayload(ctx context.Context, mgr *rotation.Manager, id secretstore.Identity, payload payloadSource, opts ...rotation.RotateOption) (*rotation.Result, error) {
	var res *rotation.Result
	err := payload.Use(func(plaintext []byte) error {
		res, _ = mgr.RotateAndRetire(ctx, id, plaintext, opts...)
		return nil
	})
	if err != nil {
		return nil, gkerrors.UserError{
			Message:    "Failed to read the new payload from protected memory",
			Suggestion: "Nothing was published. Retry the rotation",
			Err:        err,
		}
	}
	if res == nil {
		return nil, gkerrors.UserError{Message: "Rotation of " + id.SecretID() + " did not run"}
	}
	return res, nil
}

func writeResultText(w io.Writer, res *rotation.Result) {
	_, _ = fmt.Fprintf(w, "secret:   %s\n", res.Identity)
	_, _ = fmt.Fprintf(w, "outcome:  %s\n", res.Outcome)
	if res.NewVersion != "" {
		_, _ = fmt.Fprintf(w, "new:      %s\n", res.NewVersion)
	}
	if res.RetiredVersion != "" {
		_, _ = fmt.Fprintf(w, "retired:  %s\n", res.RetiredVersion)
	}
	if res.Diagnostics == nil {
		return
	}
	writeListing(w, "before", res.Diagnostics.Before)
	if res.Diagnostics.After != nil {
		writeListing(w, "after", res.Diagnostics.After)
	}
	if res.Diagnostics.AfterErr != nil {
		_, _ = fmt.Fprintf(w, "after:    listing failed: %v\n", res.Diagnostics.AfterErr)
	}
}

func writeListing(w io.Writer, label string, versions []secretstore.Version) {
	_, _ = fmt.Fprintf(w, "%s:\n", label)
	for _, v := range versions {
		_, _ = fmt.Fprintf(w, "  %-6s %s\n", v.ID, v.State)
	}
}

type resultJSON struct {
	Secret         string        `json:"secret"`
	Outcome        string        `json:"outcome"`
	NewVersion     string        `json:"new_version,omitempty"`
	RetiredVersion string        `json:"retired_version,omitempty"`
	Error          string        `json:"error,omitempty"`
	Before         []versionJSON `json:"before,omitempty"`
	After          []versionJSON `json:"after,omitempty"`
}

type versionJSON struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	CreateTime time.Time `json:"create_time,omitempty"`
}

func toVersionsJSON(versions []secretstore.Version) []versionJSON {
	out := make([]versionJSON, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionJSON{ID: v.ID, State: v.State.String(), CreateTime: v.CreateTime})
	}
	return out
}

func writeResultJSON(w io.Writer, res *rotation.Result) error {
	out := resultJSON{
		Secret:         res.Identity.String(),
		Outcome:        string(res.Outcome),
		NewVersion:     res.NewVersion,
		RetiredVersion: res.RetiredVersion,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.Diagnostics != nil {
		out.Before = toVersionsJSON(res.Diagnostics.Before)
		if res.Diagnostics.After != nil {
			out.After = toVersionsJSON(res.Diagnostics.After)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
