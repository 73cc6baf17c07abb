// Package ledger stores the append-only upload and decline logs that the
// review pipeline replays to derive item status.
package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// TimeLayout is the timestamp format written to both ledgers.
const TimeLayout = "2006-01-02 15:04:05"

var (
	uploadHeader  = []string{"timestamp", "email", "user_id", "filename", "path"}
	declineHeader = []string{"timestamp", "email", "user_id", "filename"}
)

// UploadRecord is one accepted file.
type UploadRecord struct {
	Timestamp            time.Time
	Identity             string
	UserID               string // empty when the row predates user ids
	RelativePath         string
	SuggestedDestination string
}

// TopLevelItem returns the first segment of the record's relative path.
func (r UploadRecord) TopLevelItem() string {
	return TopLevel(r.RelativePath)
}

// IsFolderUpload reports whether the record is one file of a folder upload.
func (r UploadRecord) IsFolderUpload() bool {
	return strings.ContainsAny(r.RelativePath, `/\`)
}

// DeclineRecord is one admin decline of a top-level item.
type DeclineRecord struct {
	Timestamp time.Time
	Identity  string
	UserID    string
	Item      string
}

// TopLevel returns the first path segment of p, splitting on both
// forward and back slashes.
func TopLevel(p string) string {
	if i := strings.IndexAny(p, `/\`); i >= 0 {
		return p[:i]
	}
	return p
}

// UploadLedger is the log of accepted uploads.
type UploadLedger struct {
	file *csvFile
}

// NewUploadLedger opens (lazily) the upload ledger at path.
func NewUploadLedger(path string) *UploadLedger {
	return &UploadLedger{file: newCSVFile(path, uploadHeader)}
}

// Append durably records an accepted upload.
func (l *UploadLedger) Append(ctx context.Context, rec UploadRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.file.append([]string{
		rec.Timestamp.Format(TimeLayout),
		rec.Identity,
		rec.UserID,
		rec.RelativePath,
		rec.SuggestedDestination,
	})
}

// ReadAll returns all upload records, oldest first.
//
// Rows with five fields carry a user id; legacy four-field rows
// (timestamp, email, filename, path) are returned with an empty UserID.
func (l *UploadLedger) ReadAll(ctx context.Context) ([]UploadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := l.file.readAll()
	if err != nil {
		return nil, err
	}

	records := make([]UploadRecord, 0, len(rows))
	for i, row := range rows {
		var rec UploadRecord
		switch {
		case len(row) >= 5:
			rec = UploadRecord{Identity: row[1], UserID: row[2], RelativePath: row[3], SuggestedDestination: row[4]}
		case len(row) == 4:
			rec = UploadRecord{Identity: row[1], RelativePath: row[2], SuggestedDestination: row[3]}
		default:
			slog.Warn("skipping malformed upload ledger row", "path", l.file.path, "row", i, "fields", len(row))
			continue
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			slog.Warn("skipping upload ledger row with bad timestamp", "path", l.file.path, "row", i, "value", row[0])
			continue
		}
		rec.Timestamp = ts
		records = append(records, rec)
	}
	return records, nil
}

// DeclineLedger is the log of declined items.
type DeclineLedger struct {
	file *csvFile
}

// NewDeclineLedger opens (lazily) the decline ledger at path.
func NewDeclineLedger(path string) *DeclineLedger {
	return &DeclineLedger{file: newCSVFile(path, declineHeader)}
}

// Append durably records a decline.
func (l *DeclineLedger) Append(ctx context.Context, rec DeclineRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.file.append([]string{
		rec.Timestamp.Format(TimeLayout),
		rec.Identity,
		rec.UserID,
		rec.Item,
	})
}

// ReadAll returns all decline records, oldest first. Legacy three-field
// rows have no user id.
func (l *DeclineLedger) ReadAll(ctx context.Context) ([]DeclineRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := l.file.readAll()
	if err != nil {
		return nil, err
	}

	records := make([]DeclineRecord, 0, len(rows))
	for i, row := range rows {
		var rec DeclineRecord
		switch {
		case len(row) >= 4:
			rec = DeclineRecord{Identity: row[1], UserID: row[2], Item: row[3]}
		case len(row) == 3:
			rec = DeclineRecord{Identity: row[1], Item: row[2]}
		default:
			slog.Warn("skipping malformed decline ledger row", "path", l.file.path, "row", i, "fields", len(row))
			continue
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			slog.Warn("skipping decline ledger row with bad timestamp", "path", l.file.path, "row", i, "value", row[0])
			continue
		}
		rec.Timestamp = ts
		records = append(records, rec)
	}
	return records, nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.Local)
}
