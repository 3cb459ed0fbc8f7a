package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ytdigest/internal/domain"
)

// SheetsBackend keeps the ledger in a Google Sheet: one row per item with
// the columns id, title, status.
type SheetsBackend struct {
	service *sheets.Service
	sheetID string
	rng     string
}

// NewSheetsBackend creates a backend for sheetID. rng is the A1 range rows
// are appended to, e.g. "A:C" or "Ledger!A:C".
func NewSheetsBackend(ctx context.Context, sheetID, rng string, opts ...option.ClientOption) (*SheetsBackend, error) {
	if sheetID == "" {
		return nil, &StorageError{Op: "open", Backend: "sheets", Err: fmt.Errorf("%w: no sheet id", ErrUnavailable)}
	}
	if rng == "" {
		rng = "A:C"
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &StorageError{Op: "open", Backend: "sheets", Err: err}
	}
	return &SheetsBackend{service: svc, sheetID: sheetID, rng: rng}, nil
}

// Processed scans the id column. The sheet is small (one row per
// notified video), so a full column read per lookup is acceptable.
func (b *SheetsBackend) Processed(ctx context.Context, id string) (bool, error) {
	resp, err := b.service.Spreadsheets.Values.Get(b.sheetID, idColumn(b.rng)).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return false, &StorageError{Op: "lookup", Backend: "sheets", ID: id, Err: err}
	}
	for _, col := range resp.Values {
		for _, cell := range col {
			if fmt.Sprint(cell) == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *SheetsBackend) Append(ctx context.Context, m domain.Marker) error {
	if err := validateMarker("sheets", m); err != nil {
		return err
	}
	row := &sheets.ValueRange{
		Values: [][]interface{}{{m.ItemID, m.Title, m.Status}},
	}
	_, err := b.service.Spreadsheets.Values.Append(b.sheetID, b.rng, row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &StorageError{Op: "append", Backend: "sheets", ID: m.ItemID, Err: err}
	}
	return nil
}

func (b *SheetsBackend) Close() error { return nil }

// idColumn narrows an append range to its first column:
// "Ledger!B2:D" becomes "Ledger!B:B". A bare name with neither "!" nor ":"
// is a sheet name, so "Ledger" becomes "Ledger!A:A".
func idColumn(rng string) string {
	if rng != "" && !strings.ContainsAny(rng, "!:") {
		return rng + "!A:A"
	}
	prefix := ""
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		prefix, rng = rng[:i+1], rng[i+1:]
	}
	start, _, _ := strings.Cut(rng, ":")
	col := strings.TrimRightFunc(start, func(r rune) bool { return r >= '0' && r <= '9' })
	if col == "" {
		col = "A"
	}
	return prefix + col + ":" + col
}
