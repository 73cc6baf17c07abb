package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"merkaz/internal/server/database"
	"merkaz/internal/server/ledger"
	"merkaz/internal/server/storage"
)

// Status is the derived state of an uploaded item.
type Status string

const (
	StatusDeclined Status = "Declined"
	StatusPending  Status = "Pending Review"
	StatusApproved Status = "Approved & Moved"
)

// UploadStatus is one row of a submitter's upload history.
type UploadStatus struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  string    `json:"email"`
	UserID    string    `json:"user_id,omitempty"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Status    Status    `json:"status"`
}

// SubmitterInfo is the directory view of a submitter, shown to admins.
type SubmitterInfo struct {
	ID       string `json:"id"`
	Identity string `json:"email"`
	Role     string `json:"role"`
}

// PendingItem is one top-level item awaiting an admin decision.
type PendingItem struct {
	Timestamp time.Time      `json:"timestamp"`
	Identity  string         `json:"email"`
	UserID    string         `json:"user_id,omitempty"`
	User      *SubmitterInfo `json:"user,omitempty"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
}

// ReviewService derives item status from the ledgers and the filesystem
// and carries out admin decisions. Nothing is cached: every read replays
// the full ledgers.
type ReviewService struct {
	uploads   *ledger.UploadLedger
	declines  *ledger.DeclineLedger
	staging   *storage.FileSystemStore
	shared    *storage.FileSystemStore
	directory database.Directory
	now       func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(
	uploads *ledger.UploadLedger,
	declines *ledger.DeclineLedger,
	staging, shared *storage.FileSystemStore,
	directory database.Directory,
) *ReviewService {
	return &ReviewService{
		uploads:   uploads,
		declines:  declines,
		staging:   staging,
		shared:    shared,
		directory: directory,
		now:       time.Now,
	}
}

// MyUploads returns the caller's uploads with their derived status, newest first.
func (s *ReviewService) MyUploads(ctx context.Context, who Submitter) ([]UploadStatus, error) {
	who = resolveSubmitter(ctx, s.directory, who)

	declines, err := s.declines.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read decline ledger: %w", err)
	}
	declined := make(map[string]bool)
	for _, d := range declines {
		if (who.Identity != "" && d.Identity == who.Identity) || (d.UserID != "" && d.UserID == who.UserID) {
			declined[d.Item] = true
		}
	}

	records, err := s.uploads.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload ledger: %w", err)
	}

	out := make([]UploadStatus, 0)
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if !belongsTo(rec, who) {
			continue
		}
		out = append(out, UploadStatus{
			Timestamp: rec.Timestamp,
			Identity:  rec.Identity,
			UserID:    rec.UserID,
			Filename:  rec.RelativePath,
			Path:      rec.SuggestedDestination,
			Status:    s.status(rec, declined),
		})
	}
	return out, nil
}

// belongsTo matches by user id when both sides have one, otherwise by identity.
func belongsTo(rec ledger.UploadRecord, who Submitter) bool {
	if who.UserID != "" && rec.UserID != "" {
		return rec.UserID == who.UserID
	}
	return who.Identity != "" && rec.Identity == who.Identity
}

func (s *ReviewService) status(rec ledger.UploadRecord, declined map[string]bool) Status {
	switch {
	case declined[rec.TopLevelItem()] && !s.shared.Exists(rec.SuggestedDestination):
		return StatusDeclined
	case s.staging.Exists(strings.ReplaceAll(rec.RelativePath, `\`, "/")):
		return StatusPending
	default:
		return StatusApproved
	}
}

// PendingReview groups the upload ledger by top-level item, keeping the
// most recent record of each item that is still in staging, oldest first.
func (s *ReviewService) PendingReview(ctx context.Context) ([]PendingItem, error) {
	records, err := s.uploads.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload ledger: %w", err)
	}

	seen := make(map[string]bool)
	items := make([]PendingItem, 0)
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		item := rec.TopLevelItem()
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		if !s.staging.Exists(item) {
			continue
		}

		p := PendingItem{
			Timestamp: rec.Timestamp,
			Identity:  rec.Identity,
			UserID:    rec.UserID,
			Filename:  item,
			Path:      approvalPath(rec),
		}
		if s.directory != nil {
			if u, err := s.directory.FindByIdentity(ctx, rec.Identity); err == nil {
				p.User = &SubmitterInfo{ID: u.ID, Identity: u.Identity, Role: u.Role}
				if p.UserID == "" {
					p.UserID = u.ID
				}
			}
		}
		items = append(items, p)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	return items, nil
}

// approvalPath is the directory the item was suggested into. For a folder
// upload that is the parent of the folder's own suggested location, since
// folders are approved as a unit.
func approvalPath(rec ledger.UploadRecord) string {
	target := rec.SuggestedDestination
	if rec.IsFolderUpload() {
		rel := strings.ReplaceAll(rec.RelativePath, `\`, "/")
		inner := strings.TrimPrefix(rel, rec.TopLevelItem())
		target = strings.TrimSuffix(target, inner)
	}
	dir := path.Dir(target)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Move approves item by renaming it from staging into the shared store.
//
// destination is a directory relative to the shared root and the item
// keeps its name inside it, unless the destination already ends with the
// item's name, in which case it is the full target. It returns the target
// path relative to the shared root.
func (s *ReviewService) Move(ctx context.Context, item, destination string) (string, error) {
	if err := validateItem(item); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := strings.TrimSpace(strings.ReplaceAll(destination, `\`, "/"))
	target := item
	switch {
	case dest == "" || dest == "." || dest == "/":
	case path.Base(dest) == item:
		target = dest
	default:
		target = path.Join(dest, item)
	}

	if _, err := s.shared.Resolve(target); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, destination)
	}

	if err := s.staging.MoveTo(item, s.shared, target); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotExist):
			return "", fmt.Errorf("%w: %s", ErrNotFound, item)
		case errors.Is(err, storage.ErrOutsideRoot):
			return "", fmt.Errorf("%w: %q", ErrInvalidTarget, destination)
		default:
			return "", fmt.Errorf("failed to move %s: %w", item, err)
		}
	}

	slog.Info("item moved", "item", item, "target", target)
	return strings.TrimPrefix(target, "/"), nil
}

// Decline records the decline and then deletes item from staging. The
// record is written first and kept even when deletion fails or the item is
// already gone. Without a hint the decline is attributed to whoever last
// uploaded the item.
func (s *ReviewService) Decline(ctx context.Context, item string, hint Submitter) error {
	if err := validateItem(item); err != nil {
		return err
	}
	if hint.Identity == "" && hint.UserID == "" {
		hint = s.lastSubmitter(ctx, item)
	}
	if hint.Identity == "" {
		hint.Identity = "unknown"
	}
	hint = resolveSubmitter(ctx, s.directory, hint)

	rec := ledger.DeclineRecord{
		Timestamp: s.now(),
		Identity:  hint.Identity,
		UserID:    hint.UserID,
		Item:      item,
	}
	if err := s.declines.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to record decline of %s: %w", item, err)
	}

	if err := s.staging.RemoveAll(item); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			slog.Info("declined item already removed", "item", item)
			return fmt.Errorf("%w: %s", ErrNotFound, item)
		}
		slog.Error("decline recorded but cleanup failed", "item", item, "error", err)
		return fmt.Errorf("failed to delete %s: %w", item, err)
	}

	slog.Info("item declined", "item", item, "identity", hint.Identity, "user_id", hint.UserID)
	return nil
}

// lastSubmitter returns the submitter of the most recent upload of item, or
// the zero value when the ledger has none.
func (s *ReviewService) lastSubmitter(ctx context.Context, item string) Submitter {
	records, err := s.uploads.ReadAll(ctx)
	if err != nil {
		slog.Warn("failed to read upload ledger for decline attribution", "item", item, "error", err)
		return Submitter{}
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].TopLevelItem() == item {
			return Submitter{Identity: records[i].Identity, UserID: records[i].UserID}
		}
	}
	return Submitter{}
}

// validateItem accepts only a single top-level path segment.
func validateItem(item string) error {
	if item == "" || item == "." || item == ".." || strings.ContainsAny(item, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidItem, item)
	}
	return nil
}
