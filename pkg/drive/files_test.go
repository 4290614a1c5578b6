package drive_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/systmms/gcpkit/pkg/drive"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// fakeDrive is a minimal in-memory Drive v3 files endpoint.
type fakeDrive struct {
	mu       sync.Mutex
	files    map[string]*drivev3.File
	content  map[string][]byte
	next     int
	status   map[string]int
	requests []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files:   make(map[string]*drivev3.File),
		content: make(map[string][]byte),
		status:  make(map[string]int),
	}
}

func (d *fakeDrive) seed(id, name, mimeType string, content []byte, parents ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[id] = &drivev3.File{Id: id, Name: name, MimeType: mimeType, Parents: parents}
	d.content[id] = content
}

func (d *fakeDrive) file(id string) *drivev3.File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[id]
}

func (d *fakeDrive) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func (d *fakeDrive) fail(id string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status[id] = code
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, r.Method+" "+r.URL.Path)

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/files"):
		d.create(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files"):
		d.list(w, r)
		return
	}

	idx := strings.LastIndex(path, "/files/")
	if idx < 0 {
		writeError(w, http.StatusNotFound, "unknown path "+path)
		return
	}
	id := path[idx+len("/files/"):]
	if code, ok := d.status[id]; ok {
		writeError(w, code, "injected failure")
		return
	}
	f, ok := d.files[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write(d.content[id])
			return
		}
		writeJSON(w, f)
	case http.MethodPatch:
		q := r.URL.Query()
		if remove := q.Get("removeParents"); remove != "" {
			var kept []string
			for _, p := range f.Parents {
				if p != remove {
					kept = append(kept, p)
				}
			}
			f.Parents = kept
		}
		if add := q.Get("addParents"); add != "" {
			f.Parents = append(f.Parents, add)
		}
		writeJSON(w, f)
	case http.MethodDelete:
		delete(d.files, id)
		delete(d.content, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

func (d *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var meta drivev3.File
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, _ := io.ReadAll(mediaPart)

	d.next++
	id := fmt.Sprintf("created-%d", d.next)
	meta.Id = id
	d.files[id] = &meta
	d.content[id] = data
	writeJSON(w, map[string]string{"id": id})
}

func (d *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var out []*drivev3.File
	for _, f := range d.files {
		if !strings.Contains(q, fmt.Sprintf("name = '%s'", f.Name)) {
			continue
		}
		for _, p := range f.Parents {
			if strings.Contains(q, fmt.Sprintf("'%s' in parents", p)) {
				out = append(out, f)
				break
			}
		}
	}
	writeJSON(w, map[string]any{"files": out})
}

func newFiles(t *testing.T) (*drive.Files, *fakeDrive) {
	t.Helper()
	fake := newFakeDrive()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	files, err := drive.Dial(context.Background(), nil,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return files, fake
}

func TestGet(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("f1", "report.csv", "text/csv", nil, "folderA")

	got, err := files.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, drive.File{ID: "f1", Name: "report.csv", MimeType: "text/csv", Parents: []string{"folderA"}}, got)
	assert.False(t, got.IsFolder())

	_, err = files.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, secretstore.ErrNotFound)

	_, err = files.Get(context.Background(), "")
	assert.ErrorIs(t, err, secretstore.ErrInvalidArgument)
}

func TestParentID(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("child", "a.txt", "text/plain", nil, "folderA", "folderB")
	fake.seed("orphan", "b.txt", "text/plain", nil)

	parent, ok, err := files.ParentID(context.Background(), "child")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "folderA", parent)

	parent, ok, err = files.ParentID(context.Background(), "orphan")
	require.NoError(t, err, "no parent is not an error")
	assert.False(t, ok)
	assert.Empty(t, parent)
}

func TestMove(t *testing.T) {
	t.Parallel()

	t.Run("replaces_current_parent", func(t *testing.T) {
		t.Parallel()
		files, fake := newFiles(t)
		fake.seed("f1", "a.txt", "text/plain", nil, "old")

		moved, err := files.Move(context.Background(), "f1", "new")
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, moved.Parents)
		assert.Equal(t, []string{"new"}, fake.file("f1").Parents)
	})

	t.Run("file_without_parent", func(t *testing.T) {
		t.Parallel()
		files, fake := newFiles(t)
		fake.seed("f1", "a.txt", "text/plain", nil)

		moved, err := files.Move(context.Background(), "f1", "new")
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, moved.Parents)
	})

	t.Run("missing_file", func(t *testing.T) {
		t.Parallel()
		files, _ := newFiles(t)
		_, err := files.Move(context.Background(), "nope", "new")
		assert.ErrorIs(t, err, secretstore.ErrNotFound)
	})
}

func TestDownload(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("f1", "a.bin", "application/octet-stream", []byte("binary\x00content"), "folderA")

	var buf bytes.Buffer
	n, err := files.Download(context.Background(), "f1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("binary\x00content")), n)
	assert.Equal(t, "binary\x00content", buf.String())

	_, err = files.Download(context.Background(), "missing", &buf)
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("folderA", "Reports", drive.FolderMimeType, nil)

	id, err := files.Create(context.Background(), drive.CreateInput{
		Name:     "notes.txt",
		MimeType: "text/plain",
		ParentID: "folderA",
		Content:  strings.NewReader("hello drive"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	created := fake.file(id)
	require.NotNil(t, created)
	assert.Equal(t, "notes.txt", created.Name)
	assert.Equal(t, []string{"folderA"}, created.Parents)

	var buf bytes.Buffer
	_, err = files.Download(context.Background(), id, &buf)
	require.NoError(t, err)
	assert.Equal(t, "hello drive", buf.String())
}

func TestCreateValidatesParent(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	_, err := files.Create(context.Background(), drive.CreateInput{
		Name:     "notes.txt",
		MimeType: "text/plain",
		ParentID: "missing-folder",
		Content:  strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, secretstore.ErrNotFound)
	for _, req := range fake.seen() {
		assert.NotContains(t, req, "POST", "no upload without a parent")
	}

	_, err = files.Create(context.Background(), drive.CreateInput{ParentID: "folderA"})
	assert.ErrorIs(t, err, secretstore.ErrInvalidArgument)
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("f1", "config.yaml", "text/yaml", nil, "folderA")
	fake.seed("f2", "config.yaml", "text/yaml", nil, "folderB")

	got, ok, err := files.FindByName(context.Background(), "folderB", "config.yaml")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "f2", got.ID)

	_, ok, err = files.FindByName(context.Background(), "folderA", "absent.yaml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("f1", "a.txt", "text/plain", nil, "folderA")

	require.NoError(t, files.Delete(context.Background(), "f1"))
	assert.Nil(t, fake.file("f1"))
	assert.ErrorIs(t, files.Delete(context.Background(), "f1"), secretstore.ErrNotFound)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, secretstore.ErrAuth},
		{http.StatusForbidden, secretstore.ErrAuth},
		{http.StatusNotFound, secretstore.ErrNotFound},
		{http.StatusBadRequest, secretstore.ErrInvalidArgument},
		{http.StatusTooManyRequests, secretstore.ErrTransient},
		{http.StatusServiceUnavailable, secretstore.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			files, fake := newFiles(t)
			fake.seed("f1", "a.txt", "text/plain", nil)
			fake.fail("f1", tt.status)

			_, err := files.Get(context.Background(), "f1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCanceledContextPassesThrough(t *testing.T) {
	t.Parallel()

	files, fake := newFiles(t)
	fake.seed("f1", "a.txt", "text/plain", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := files.Get(ctx, "f1")
	assert.ErrorIs(t, err, context.Canceled)
}
