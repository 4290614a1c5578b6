package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/pkg/gcpauth"
)

// NewMetadataCommand prints a project metadata value.
func NewMetadataCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata KEY",
		Short: "Print a project metadata value",
		Long: `Print a value from the GCE metadata server's project metadata, such as
'project-id', 'numeric-project-id' or 'attributes/<name>'.

'project-id' falls back to GOOGLE_CLOUD_PROJECT, GCLOUD_PROJECT and GCP_PROJECT
when the metadata server is not reachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := app.Resolver
			if resolver == nil {
				resolver = defaultResolver()
			}
			v, ok, err := resolver.Get(cmd.Context(), args[0])
			if err != nil {
				return gkerrors.GCPError("Reading metadata "+args[0], err)
			}
			if !ok {
				suggestion := "Check the key name; attributes are read as 'attributes/<name>'"
				if args[0] == gcpauth.ProjectIDKey {
					suggestion = "Run on GCE or export GOOGLE_CLOUD_PROJECT"
				}
				return gkerrors.UserError{
					Message:    fmt.Sprintf("Metadata key %q is not defined", args[0]),
					Suggestion: suggestion,
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}
