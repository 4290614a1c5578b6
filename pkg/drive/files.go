// Package drive wraps the Google Drive v3 files API with the error taxonomy
// used by secretstore.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// FolderMimeType is the MIME type Drive uses for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

const fileFields = "id, name, mimeType, parents"

// File is the metadata of a Drive file.
type File struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
}

// IsFolder reports whether f is a folder.
func (f File) IsFolder() bool { return f.MimeType == FolderMimeType }

// Files performs file operations against one Drive service.
type Files struct {
	svc    *drivev3.Service
	logger *logging.Logger
}

// New wraps an existing Drive service.
func New(svc *drivev3.Service, logger *logging.Logger) *Files {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Files{svc: svc, logger: logger}
}

// Dial creates a Drive service from opts.
func Dial(ctx context.Context, logger *logging.Logger, opts ...option.ClientOption) (*Files, error) {
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, secretstore.AuthError{Resource: "drive client", Err: err}
	}
	return New(svc, logger), nil
}

// Get returns the metadata of fileID.
func (f *Files) Get(ctx context.Context, fileID string) (File, error) {
	if err := requireID("file_id", fileID); err != nil {
		return File{}, err
	}
	df, err := f.svc.Files.Get(fileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return File{}, classify("drive file "+fileID, err)
	}
	return fromAPI(df), nil
}

// ParentID returns the first parent folder of fileID. ok is false when the
// file has no parent, such as a shared-with-me file or a drive root.
func (f *Files) ParentID(ctx context.Context, fileID string) (parentID string, ok bool, err error) {
	file, err := f.Get(ctx, fileID)
	if err != nil {
		return "", false, err
	}
	if len(file.Parents) == 0 {
		return "", false, nil
	}
	return file.Parents[0], true, nil
}

// Move places fileID in newFolderID, removing it from its current parent if
// it has one.
func (f *Files) Move(ctx context.Context, fileID, newFolderID string) (File, error) {
	if err := requireID("folder_id", newFolderID); err != nil {
		return File{}, err
	}
	current, hasParent, err := f.ParentID(ctx, fileID)
	if err != nil {
		return File{}, err
	}

	call := f.svc.Files.Update(fileID, &drivev3.File{}).
		AddParents(newFolderID).
		Fields("id, parents").
		Context(ctx)
	if hasParent {
		call = call.RemoveParents(current)
	}

	f.logger.Debug("Moving drive file %s to folder %s", fileID, newFolderID)
	df, err := call.Do()
	if err != nil {
		return File{}, classify("drive file "+fileID, err)
	}
	return fromAPI(df), nil
}

// Download streams the content of fileID into w and returns the number of
// bytes written.
func (f *Files) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	if err := requireID("file_id", fileID); err != nil {
		return 0, err
	}
	resp, err := f.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return 0, classify("drive file "+fileID, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, secretstore.TransientError{Resource: "drive file " + fileID, Err: err}
	}
	f.logger.Debug("Downloaded drive file %s (%d bytes)", fileID, n)
	return n, nil
}

// CreateInput describes a file to upload.
type CreateInput struct {
	Name     string
	MimeType string
	ParentID string
	Content  io.Reader
}

// Create uploads a new file into in.ParentID and returns its id. The parent
// folder must exist.
func (f *Files) Create(ctx context.Context, in CreateInput) (string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", secretstore.InvalidArgumentError{Field: "name", Message: "must not be empty"}
	}
	if err := requireID("parent_id", in.ParentID); err != nil {
		return "", err
	}

	parent, err := f.Get(ctx, in.ParentID)
	if err != nil {
		return "", fmt.Errorf("parent folder: %w", err)
	}
	f.logger.Debug("Creating drive file %q (%s) in folder %s (%s)", in.Name, in.MimeType, parent.ID, parent.Name)

	content := in.Content
	if content == nil {
		content = strings.NewReader("")
	}
	meta := &drivev3.File{
		Name:     in.Name,
		MimeType: in.MimeType,
		Parents:  []string{in.ParentID},
	}
	call := f.svc.Files.Create(meta).Fields("id").Context(ctx)
	if in.MimeType != "" {
		call = call.Media(content, googleapi.ContentType(in.MimeType))
	} else {
		call = call.Media(content)
	}

	created, err := call.Do()
	if err != nil {
		return "", classify("drive folder "+in.ParentID, err)
	}
	f.logger.Debug("Created drive file %s", created.Id)
	return created.Id, nil
}

// FindByName returns the first non-trashed file called name directly inside
// folderID. ok is false when there is none.
func (f *Files) FindByName(ctx context.Context, folderID, name string) (File, bool, error) {
	if err := requireID("folder_id", folderID); err != nil {
		return File{}, false, err
	}
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(folderID))
	list, err := f.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("files(" + fileFields + ")")).
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, false, classify("drive folder "+folderID, err)
	}
	if len(list.Files) == 0 {
		return File{}, false, nil
	}
	return fromAPI(list.Files[0]), true, nil
}

// Delete permanently deletes fileID, bypassing the trash.
func (f *Files) Delete(ctx context.Context, fileID string) error {
	if err := requireID("file_id", fileID); err != nil {
		return err
	}
	if err := f.svc.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return classify("drive file "+fileID, err)
	}
	return nil
}

func fromAPI(df *drivev3.File) File {
	return File{
		ID:       df.Id,
		Name:     df.Name,
		MimeType: df.MimeType,
		Parents:  df.Parents,
	}
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return secretstore.InvalidArgumentError{Field: field, Message: "must not be empty"}
	}
	return nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// classify maps a Drive API error onto the secretstore taxonomy by HTTP
// status.
func classify(resource string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return secretstore.TransientError{Resource: resource, Err: err}
	}
	switch {
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return secretstore.AuthError{Resource: resource, Err: err}
	case gerr.Code == http.StatusNotFound:
		return secretstore.NotFoundError{Resource: resource, Err: err}
	case gerr.Code == http.StatusBadRequest:
		return secretstore.InvalidArgumentError{Field: "request", Value: resource, Message: gerr.Message, Err: err}
	default:
		return secretstore.TransientError{Resource: resource, Err: err}
	}
}
