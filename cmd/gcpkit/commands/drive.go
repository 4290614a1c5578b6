package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/pkg/drive"
)

// NewDriveCommand creates the parent 'drive' command
func NewDriveCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Move, download and upload Google Drive files",
		Long: `Operate on Google Drive files by id.

Examples:
  gcpkit drive get 1AbC
  gcpkit drive move 1AbC 0FolderId
  gcpkit drive download 1AbC -o report.csv
  gcpkit drive create --name notes.txt --mime-type text/plain --parent 0FolderId --data-file notes.txt
  gcpkit drive find 0FolderId notes.txt
  gcpkit drive delete 1AbC --yes`,
	}

	cmd.AddCommand(
		newDriveGetCommand(app),
		newDriveMoveCommand(app),
		newDriveDownloadCommand(app),
		newDriveCreateCommand(app),
		newDriveFindCommand(app),
		newDriveDeleteCommand(app),
	)

	return cmd
}

func printFile(w io.Writer, f drive.File) {
	parents := "-"
	if len(f.Parents) > 0 {
		parents = strings.Join(f.Parents, ",")
	}
	_, _ = fmt.Fprintf(w, "id:        %s\nname:      %s\nmime_type: %s\nparents:   %s\n", f.ID, f.Name, f.MimeType, parents)
}

func newDriveGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE_ID",
		Short: "Show file metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}
			f, err := files.Get(cmd.Context(), args[0])
			if err != nil {
				return gkerrors.GCPError("Getting drive file "+args[0], err)
			}
			printFile(cmd.OutOrStdout(), f)
			return nil
		},
	}
}

func newDriveMoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move FILE_ID FOLDER_ID",
		Short: "Move a file into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}
			f, err := files.Move(cmd.Context(), args[0], args[1])
			if err != nil {
				return gkerrors.GCPError("Moving drive file "+args[0], err)
			}
			app.logger().Info("Moved %s to %s", f.ID, strings.Join(f.Parents, ","))
			return nil
		},
	}
}

func newDriveDownloadCommand(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download FILE_ID",
		Short: "Download file content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return gkerrors.UserError{
						Message:    "Failed to create output file",
						Suggestion: "Check the --output path and permissions",
						Err:        err,
					}
				}
				defer f.Close()
				w = f
			}

			n, err := files.Download(cmd.Context(), args[0], w)
			if err != nil {
				return gkerrors.GCPError("Downloading drive file "+args[0], err)
			}
			app.logger().Debug("Wrote %d bytes", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func newDriveCreateCommand(app *App) *cobra.Command {
	var (
		name     string
		mimeType string
		parent   string
		dataFile string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Upload a new file into a folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if dataFile != "" && dataFile != "-" {
				f, err := os.Open(dataFile)
				if err != nil {
					return gkerrors.UserError{
						Message:    "Failed to open content file",
						Suggestion: "Check the --data-file path",
						Err:        err,
					}
				}
				defer f.Close()
				in = f
			}

			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}
			id, err := files.Create(cmd.Context(), drive.CreateInput{
				Name:     name,
				MimeType: mimeType,
				ParentID: parent,
				Content:  in,
			})
			if err != nil {
				return gkerrors.GCPError("Creating drive file "+name, err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "File name (required)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "application/octet-stream", "Content MIME type")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent folder id (required)")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Read content from a file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("parent")

	return cmd
}

func newDriveFindCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "find FOLDER_ID NAME",
		Short: "Find a file by name inside a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}
			f, ok, err := files.FindByName(cmd.Context(), args[0], args[1])
			if err != nil {
				return gkerrors.GCPError("Searching drive folder "+args[0], err)
			}
			if !ok {
				return gkerrors.UserError{
					Message:    fmt.Sprintf("No file named %q in folder %s", args[1], args[0]),
					Suggestion: "Names are matched exactly; trashed files are ignored",
				}
			}
			printFile(cmd.OutOrStdout(), f)
			return nil
		},
	}
}

func newDriveDeleteCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete FILE_ID",
		Short: "Permanently delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return gkerrors.UserError{
					Message:    "Refusing to delete without confirmation",
					Suggestion: "Deleted files skip the trash. Re-run with --yes",
				}
			}
			files, err := app.files(cmd.Context())
			if err != nil {
				return err
			}
			if err := files.Delete(cmd.Context(), args[0]); err != nil {
				return gkerrors.GCPError("Deleting drive file "+args[0], err)
			}
			app.logger().Info("Deleted %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the delete")

	return cmd
}
