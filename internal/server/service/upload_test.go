package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"merkaz/internal/server/config"
	"merkaz/internal/server/database"
	"merkaz/internal/server/ledger"
	"merkaz/internal/server/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPortal wires both services over temporary directories.
type testPortal struct {
	root      string
	staging   *storage.FileSystemStore
	shared    *storage.FileSystemStore
	uploads   *ledger.UploadLedger
	declines  *ledger.DeclineLedger
	directory *database.MemoryDirectory
	intake    *UploadService
	review    *ReviewService
	clock     *stepClock
}

// stepClock advances one second per call so ledger timestamps are distinct.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestPortal(t *testing.T) *testPortal {
	t.Helper()
	root := t.TempDir()

	p := &testPortal{
		root:     root,
		staging:  storage.NewFileSystemStore(filepath.Join(root, "uploads")),
		shared:   storage.NewFileSystemStore(filepath.Join(root, "shared")),
		uploads:  ledger.NewUploadLedger(filepath.Join(root, "logs", "uploads.csv")),
		declines: ledger.NewDeclineLedger(filepath.Join(root, "logs", "declined_uploads.csv")),
		directory: database.NewMemoryDirectory(
			&database.User{Identity: "alice@example.com"},
			&database.User{Identity: "bob@example.com"},
			&database.User{Identity: "admin@example.com", Role: database.RoleAdmin},
		),
		clock: &stepClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)},
	}
	require.NoError(t, p.staging.EnsureDir())
	require.NoError(t, p.shared.EnsureDir())

	cfg := &config.Config{AllowedExtensions: []string{"txt", "pdf", "jpg", "png", "csv"}}
	p.intake = NewUploadService(p.uploads, p.staging, p.directory, cfg)
	p.intake.now = p.clock.Now
	p.review = NewReviewService(p.uploads, p.declines, p.staging, p.shared, p.directory)
	p.review.now = p.clock.Now
	return p
}

func (p *testPortal) upload(t *testing.T, identity, hint string, names ...string) *BatchResult {
	t.Helper()
	files := make([]IncomingFile, 0, len(names))
	for _, n := range names {
		files = append(files, IncomingFile{Name: n, Content: strings.NewReader("content of " + n)})
	}
	res, err := p.intake.Submit(context.Background(), Submitter{Identity: identity}, hint, files)
	require.NoError(t, err)
	return res
}

func ledgerRecords(t *testing.T, l *ledger.UploadLedger) []ledger.UploadRecord {
	t.Helper()
	recs, err := l.ReadAll(context.Background())
	require.NoError(t, err)
	return recs
}

func TestSubmit_StoresAndRecords(t *testing.T) {
	p := newTestPortal(t)

	res := p.upload(t, "alice@example.com", "finance/2024", "report.pdf")
	assert.Equal(t, []string{"report.pdf"}, res.Succeeded)
	assert.Empty(t, res.Rejected)

	data, err := os.ReadFile(filepath.Join(p.staging.Root(), "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "content of report.pdf", string(data))

	recs := ledgerRecords(t, p.uploads)
	require.Len(t, recs, 1)
	assert.Equal(t, "alice@example.com", recs[0].Identity)
	assert.Equal(t, "1", recs[0].UserID, "user id resolved from the directory")
	assert.Equal(t, "report.pdf", recs[0].RelativePath)
	assert.Equal(t, "finance/2024/report.pdf", recs[0].SuggestedDestination)
}

func TestSubmit_NoHintSuggestsRelativePath(t *testing.T) {
	p := newTestPortal(t)
	p.upload(t, "alice@example.com", "", "notes.txt")

	recs := ledgerRecords(t, p.uploads)
	require.Len(t, recs, 1)
	assert.Equal(t, "notes.txt", recs[0].SuggestedDestination)
}

func TestSubmit_FolderUploadKeepsStructure(t *testing.T) {
	p := newTestPortal(t)
	res := p.upload(t, "alice@example.com", `albums\2024`, "photos/img1.jpg", `photos\raw\img2.jpg`)
	assert.Equal(t, []string{"photos/img1.jpg", "photos/raw/img2.jpg"}, res.Succeeded)

	assert.FileExists(t, filepath.Join(p.staging.Root(), "photos", "img1.jpg"))
	assert.FileExists(t, filepath.Join(p.staging.Root(), "photos", "raw", "img2.jpg"))

	recs := ledgerRecords(t, p.uploads)
	require.Len(t, recs, 2)
	assert.Equal(t, "albums/2024/photos/img1.jpg", recs[0].SuggestedDestination)
	assert.Equal(t, "albums/2024/photos/raw/img2.jpg", recs[1].SuggestedDestination)
}

func TestSubmit_EmptyBatch(t *testing.T) {
	p := newTestPortal(t)

	_, err := p.intake.Submit(context.Background(), Submitter{Identity: "alice@example.com"}, "", nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = p.intake.Submit(context.Background(), Submitter{Identity: "alice@example.com"}, "",
		[]IncomingFile{{Name: "", Content: strings.NewReader("")}})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestSubmit_RejectsUnsafePaths(t *testing.T) {
	names := []string{
		"../evil.txt",
		"photos/../../evil.txt",
		`..\evil.txt`,
		`photos\..\..\evil.txt`,
		"/etc/evil.txt",
		`\evil.txt`,
		`C:\evil.txt`,
		"c:evil.txt",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			p := newTestPortal(t)
			res := p.upload(t, "alice@example.com", "", name)

			assert.Empty(t, res.Succeeded)
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, KindSecurity, res.Rejected[0].Kind)
			assert.Equal(t, name, res.Rejected[0].Filename)

			assert.Empty(t, ledgerRecords(t, p.uploads), "nothing recorded")
			assertTreeEmpty(t, p.root, "uploads", "shared")
			_, err := os.Stat(filepath.Join(p.root, "evil.txt"))
			assert.True(t, os.IsNotExist(err), "nothing written outside staging")
		})
	}
}

// assertTreeEmpty checks that the named directories under root hold no files.
func assertTreeEmpty(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		err := filepath.Walk(filepath.Join(root, d), func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				t.Errorf("unexpected file %s", p)
			}
			return nil
		})
		require.NoError(t, err)
	}
}

func TestSubmit_ExtensionAllowList(t *testing.T) {
	tests := []struct {
		name    string
		allowed bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"archive.tar.csv", true},
		{"script.sh", false},
		{"noextension", false},
		{"photo.jpg.exe", false},
		{"trailingdot.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPortal(t)
			res := p.upload(t, "alice@example.com", "", tt.name)
			if tt.allowed {
				assert.Equal(t, []string{tt.name}, res.Succeeded)
				return
			}
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, KindValidation, res.Rejected[0].Kind)
			assert.Contains(t, res.Rejected[0].Reason, "File type not allowed")
			assert.Empty(t, ledgerRecords(t, p.uploads))
		})
	}
}

func TestSubmit_RejectsExecutableContent(t *testing.T) {
	tests := map[string][]byte{
		"pe":  append([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"), make([]byte, 64)...),
		"elf": append([]byte("\x7fELF\x02\x01\x01\x00"), make([]byte, 64)...),
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			p := newTestPortal(t)
			res, err := p.intake.Submit(context.Background(), Submitter{Identity: "alice@example.com"}, "",
				[]IncomingFile{{Name: "innocent.pdf", Content: bytes.NewReader(content)}})
			require.NoError(t, err)

			assert.Empty(t, res.Succeeded)
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, KindSecurity, res.Rejected[0].Kind)
			assert.Contains(t, res.Rejected[0].Reason, "Malicious file detected")
			assert.False(t, p.staging.Exists("innocent.pdf"))
			assert.Empty(t, ledgerRecords(t, p.uploads))
		})
	}
}

func TestSubmit_LargeFileIsStoredWhole(t *testing.T) {
	p := newTestPortal(t)
	payload := bytes.Repeat([]byte("abcdefgh"), 4*sniffLen)

	res, err := p.intake.Submit(context.Background(), Submitter{Identity: "alice@example.com"}, "",
		[]IncomingFile{{Name: "big.txt", Content: bytes.NewReader(payload)}})
	require.NoError(t, err)
	require.Equal(t, []string{"big.txt"}, res.Succeeded)

	data, err := os.ReadFile(filepath.Join(p.staging.Root(), "big.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSubmit_PartialBatch(t *testing.T) {
	p := newTestPortal(t)

	files := []IncomingFile{
		{Name: "good.txt", Content: strings.NewReader("ok")},
		{Name: "bad.sh", Content: strings.NewReader("#!/bin/sh")},
		{Name: "../escape.txt", Content: strings.NewReader("nope")},
		{Name: "broken.txt", Content: failingReader{}},
		{Name: "also-good.csv", Content: strings.NewReader("a,b")},
	}
	res, err := p.intake.Submit(context.Background(), Submitter{Identity: "bob@example.com"}, "", files)
	require.NoError(t, err)

	assert.Equal(t, []string{"good.txt", "also-good.csv"}, res.Succeeded)
	require.Len(t, res.Rejected, 3)
	assert.Equal(t, KindValidation, res.Rejected[0].Kind)
	assert.Equal(t, KindSecurity, res.Rejected[1].Kind)
	assert.Equal(t, KindInternal, res.Rejected[2].Kind)

	assert.Len(t, ledgerRecords(t, p.uploads), 2)
}

func TestSubmit_FullyRejectedBatchListsReasons(t *testing.T) {
	p := newTestPortal(t)
	res := p.upload(t, "alice@example.com", "", "a.sh", "../b.txt")

	assert.Empty(t, res.Succeeded)
	assert.Len(t, res.Rejected, 2)
	for _, r := range res.Rejected {
		assert.NotEmpty(t, r.Reason)
	}
}

func TestSubmit_LedgerFailureAborts(t *testing.T) {
	p := newTestPortal(t)

	// A directory where the ledger file should be makes every append fail.
	blocked := filepath.Join(p.root, "blocked.csv")
	require.NoError(t, os.MkdirAll(blocked, 0755))
	p.intake.uploads = ledger.NewUploadLedger(blocked)

	_, err := p.intake.Submit(context.Background(), Submitter{Identity: "alice@example.com"}, "",
		[]IncomingFile{{Name: "x.txt", Content: strings.NewReader("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record upload")
}

func TestSubmit_UnknownSubmitterKeepsEmptyID(t *testing.T) {
	p := newTestPortal(t)
	p.upload(t, "stranger@example.com", "", "x.txt")

	recs := ledgerRecords(t, p.uploads)
	require.Len(t, recs, 1)
	assert.Equal(t, "stranger@example.com", recs[0].Identity)
	assert.Empty(t, recs[0].UserID)
}

func TestSniff_ReplaysStream(t *testing.T) {
	head, body, err := sniff(strings.NewReader("short"))
	require.NoError(t, err)
	assert.Equal(t, "short", string(head))

	all, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "short", string(all))
}

func TestCheckRelativePath(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"file.txt", false},
		{"dir/file.txt", false},
		{`dir\file.txt`, false},
		{"dir/./file.txt", false},
		{"..file.txt", false},
		{"../file.txt", true},
		{"dir/../file.txt", true},
		{"/abs.txt", true},
		{`\abs.txt`, true},
		{`D:\abs.txt`, true},
		{"///", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRelativePath(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
