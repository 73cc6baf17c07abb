package main

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"merkaz/internal/server/auth"
	"merkaz/internal/server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfg := &config.Config{JWTSecret: "cli-secret-0123456789", TokenTTL: time.Hour}

	out, err := run(t, cfg, "token", "--identity", "admin@example.com", "--user-id", "9", "--admin")
	require.NoError(t, err)

	claims, err := auth.NewIssuer("cli-secret-0123456789", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Identity)
	assert.Equal(t, "9", claims.UserID)
	assert.True(t, claims.Admin)
}

func TestTokenCommand_RequiresIdentity(t *testing.T) {
	_, err := run(t, &config.Config{JWTSecret: "cli-secret-0123456789"}, "token")
	assert.Error(t, err)
}

func TestTokenCommand_RefusesWeakSecret(t *testing.T) {
	out, err := run(t, &config.Config{JWTSecret: "change-me"}, "token", "--identity", "admin@example.com", "--admin")
	require.ErrorIs(t, err, config.ErrWeakSecret)
	assert.Empty(t, out)
}

func TestUploadCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "photos"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photos", "img1.jpg"), []byte("jpg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("pdf"), 0644))

	var gotNames []string
	var gotSubpath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotSubpath = r.FormValue("subpath")
		for _, fh := range r.MultipartForm.File["file"] {
			_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
			assert.NoError(t, err)
			gotNames = append(gotNames, params["filename"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"successful_uploads":["report.pdf","photos/img1.jpg"]}`))
	}))
	defer srv.Close()

	out, err := run(t, &config.Config{Port: "8000"}, "upload",
		"--server", srv.URL, "--token", "tok", "--subpath", "finance",
		filepath.Join(dir, "report.pdf"), filepath.Join(dir, "photos"))
	require.NoError(t, err)

	assert.Contains(t, out, "successful_uploads")
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "finance", gotSubpath)
	assert.Equal(t, []string{"report.pdf", "photos/img1.jpg"}, gotNames)
}

func TestUploadCommand_ServerError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"login required"}`))
	}))
	defer srv.Close()

	out, err := run(t, &config.Config{}, "upload", "--server", srv.URL, "--token", "bad", filepath.Join(dir, "a.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, out, "login required")
}

func TestUsersCommand_RequiresDatabase(t *testing.T) {
	_, err := run(t, &config.Config{}, "users", "add", "--identity", "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	_, err = run(t, &config.Config{}, "users", "add", "--identity", "a@example.com", "--role", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestUploadCommand_ReportsFileCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "photos"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photos", "img1.jpg"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photos", "img2.jpg"), []byte("two"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cmd := newRootCommand(&config.Config{})
	var stderr bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"upload", "--server", srv.URL, "--token", "tok", filepath.Join(dir, "photos")})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, stderr.String(), "uploading 2 files (6 bytes)")
}

func TestUploadCommand_NothingToUpload(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(empty, 0755))

	_, err := run(t, &config.Config{}, "upload", "--server", "http://127.0.0.1:1", "--token", "tok", empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to upload")
}
