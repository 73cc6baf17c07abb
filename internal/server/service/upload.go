package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"merkaz/internal/server/config"
	"merkaz/internal/server/database"
	"merkaz/internal/server/ledger"
	"merkaz/internal/server/storage"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of each upload is inspected for executable content.
const sniffLen = 2048

// executableMIMEs are rejected regardless of the filename's extension.
// Subtypes (for example ELF shared objects) are caught by walking parents.
var executableMIMEs = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-dosexec",
	"application/x-elf",
	"application/x-executable",
	"application/x-sharedlib",
	"application/x-mach-binary",
}

// Submitter identifies who is uploading or whose items are being reviewed.
// UserID is empty when unknown.
type Submitter struct {
	Identity string
	UserID   string
}

// IncomingFile is one named stream of a multi-file submission. Name may
// carry a relative path for folder uploads.
type IncomingFile struct {
	Name    string
	Content io.Reader
}

// BatchResult lists what was stored and what was refused.
type BatchResult struct {
	Succeeded []string    `json:"successful_uploads"`
	Rejected  []Rejection `json:"errors,omitempty"`
}

// UploadService accepts files into the staging area and records them in
// the upload ledger.
type UploadService struct {
	uploads   *ledger.UploadLedger
	staging   *storage.FileSystemStore
	directory database.Directory
	allowed   map[string]bool
	now       func() time.Time
}

// NewUploadService creates a new upload service.
func NewUploadService(uploads *ledger.UploadLedger, staging *storage.FileSystemStore, directory database.Directory, cfg *config.Config) *UploadService {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &UploadService{
		uploads:   uploads,
		staging:   staging,
		directory: directory,
		allowed:   allowed,
		now:       time.Now,
	}
}

// Submit validates and stores each file independently. Rejected files do
// not stop the batch. A ledger failure aborts the batch with an error,
// since an unrecorded upload would never reach review.
func (s *UploadService) Submit(ctx context.Context, who Submitter, destHint string, files []IncomingFile) (*BatchResult, error) {
	if len(files) == 0 || (len(files) == 1 && files[0].Name == "") {
		return nil, ErrNoFiles
	}

	who = resolveSubmitter(ctx, s.directory, who)
	hint := strings.ReplaceAll(destHint, `\`, "/")

	result := &BatchResult{}
	for _, f := range files {
		rel, rej := s.store(f)
		if rej != nil {
			slog.Warn("upload rejected",
				"identity", who.Identity,
				"filename", rej.Filename,
				"kind", rej.Kind,
				"reason", rej.Reason,
			)
			result.Rejected = append(result.Rejected, *rej)
			continue
		}

		suggested := rel
		if hint != "" {
			suggested = path.Join(hint, rel)
		}

		rec := ledger.UploadRecord{
			Timestamp:            s.now(),
			Identity:             who.Identity,
			UserID:               who.UserID,
			RelativePath:         rel,
			SuggestedDestination: suggested,
		}
		if err := s.uploads.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to record upload %s: %w", rel, err)
		}

		slog.Info("upload accepted",
			"identity", who.Identity,
			"user_id", who.UserID,
			"path", rel,
			"suggested", suggested,
		)
		result.Succeeded = append(result.Succeeded, rel)
	}

	return result, nil
}

// store runs the per-file checks and writes the file into staging.
// It returns the slash-separated path relative to the staging root.
func (s *UploadService) store(f IncomingFile) (string, *Rejection) {
	name := f.Name
	reject := func(kind RejectionKind, format string, args ...any) (string, *Rejection) {
		return "", &Rejection{Filename: name, Kind: kind, Reason: fmt.Sprintf(format, args...)}
	}

	if name == "" {
		return reject(KindValidation, "missing filename")
	}
	if !s.allowedFile(name) {
		return reject(KindValidation, "File type not allowed for %s", name)
	}

	head, body, err := sniff(f.Content)
	if err != nil {
		return reject(KindInternal, "Could not read '%s'", name)
	}
	if mime, bad := isExecutable(head); bad {
		return reject(KindSecurity, "Malicious file detected: %s (%s)", name, mime)
	}

	if err := checkRelativePath(name); err != nil {
		return reject(KindSecurity, "Invalid path in filename: '%s' was skipped", name)
	}

	rel := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if _, err := s.staging.Resolve(rel); err != nil {
		return reject(KindSecurity, "Invalid save path for file: '%s' was skipped", name)
	}

	if _, err := s.staging.Save(rel, body); err != nil {
		slog.Error("failed to store upload", "path", rel, "error", err)
		return reject(KindInternal, "Could not upload '%s'", name)
	}
	return rel, nil
}

// allowedFile checks the lowercased text after the last dot against the allow-list.
func (s *UploadService) allowedFile(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return s.allowed[strings.ToLower(name[i+1:])]
}

// sniff reads the first sniffLen bytes and returns them together with a
// reader that replays the whole stream.
func sniff(r io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), r), nil
}

// isExecutable reports whether the content looks like a native executable.
func isExecutable(head []byte) (string, bool) {
	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), executableMIMEs...) || strings.Contains(m.String(), "executable") {
			return detected.String(), true
		}
	}
	return detected.String(), false
}

// checkRelativePath rejects absolute paths and any ".." segment, splitting
// on both slash styles.
func checkRelativePath(name string) error {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) || hasDriveLetter(name) {
		return fmt.Errorf("absolute path %q", name)
	}
	segments := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	if len(segments) == 0 {
		return fmt.Errorf("empty path %q", name)
	}
	for _, seg := range segments {
		if seg == ".." {
			return fmt.Errorf("parent segment in %q", name)
		}
	}
	return nil
}

func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// resolveSubmitter fills in a missing user id from the directory.
func resolveSubmitter(ctx context.Context, directory database.Directory, who Submitter) Submitter {
	if who.UserID != "" || who.Identity == "" || directory == nil {
		return who
	}
	u, err := directory.FindByIdentity(ctx, who.Identity)
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			slog.Warn("user directory lookup failed", "identity", who.Identity, "error", err)
		}
		return who
	}
	who.UserID = u.ID
	return who
}
