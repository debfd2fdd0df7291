// Package journal records gate changes in a Google spreadsheet, newest first.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	logger "github.com/d2r2/go-logger"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/starryalley/gate_bridge/pkg/gate"
)

var lg = logger.NewPackageLogger("journal", logger.InfoLevel)

const maxRetry = 3

// NewSheetsService authenticates with a service account json file.
func NewSheetsService(ctx context.Context, credentialFile string) (*sheets.Service, error) {
	data, err := os.ReadFile(credentialFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return srv, nil
}

// Journal prepends one row per gate change: time, state and how long the
// previous state lasted.
type Journal struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rangeA1       string
	retryDelay    time.Duration

	mu       sync.Mutex
	sheetID  int64
	resolved bool
	last     time.Time
}

// New creates a journal writing rows into rangeA1, e.g. "Gate!A2:C2".
func New(service *sheets.Service, spreadsheetID, rangeA1 string) (*Journal, error) {
	a1 := strings.Split(rangeA1, "!")
	if len(a1) != 2 || a1[0] == "" {
		return nil, errors.New("unable to parse A1 notation " + rangeA1)
	}
	return &Journal{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetName:     a1[0],
		rangeA1:       rangeA1,
		retryDelay:    time.Second,
	}, nil
}

// GateChanged appends the change. Failures are logged.
func (j *Journal) GateChanged(ctx context.Context, open bool, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	held := ""
	if !j.last.IsZero() {
		held = at.Sub(j.last).Round(time.Second).String()
	}
	row := []interface{}{at.Format("2006-01-02 15:04:05"), gate.Text(open), held}
	if err := j.prepend(ctx, row); err != nil {
		lg.Errorf("Failed to journal gate change: %v", err)
		return
	}
	j.last = at
}

func (j *Journal) prepend(ctx context.Context, row []interface{}) error {
	return retry.Do(
		func() error { return j.prependRow(ctx, row) },
		retry.Attempts(maxRetry),
		retry.Delay(j.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			lg.Warningf("Retrying sheet write after error (attempt %d): %v", n+1, err)
		}),
	)
}

// prependRow inserts an empty row below the header and writes row into it.
func (j *Journal) prependRow(ctx context.Context, row []interface{}) error {
	sheetID, err := j.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	insert := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				InheritFromBefore: false,
				Range: &sheets.DimensionRange{
					Dimension:  "ROWS",
					StartIndex: 1,
					EndIndex:   2,
					SheetId:    sheetID,
				},
			},
		}},
	}
	if _, err := j.service.Spreadsheets.BatchUpdate(j.spreadsheetID, insert).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheet insert failed: %w", err)
	}

	valueRange := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]interface{}{row},
	}
	if _, err := j.service.Spreadsheets.Values.Update(j.spreadsheetID, j.rangeA1, valueRange).ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheet update failed: %w", err)
	}
	return nil
}

func (j *Journal) resolveSheetID(ctx context.Context) (int64, error) {
	if j.resolved {
		return j.sheetID, nil
	}
	spreadsheet, err := j.service.Spreadsheets.Get(j.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get sheet %v: %w", j.sheetName, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == j.sheetName {
			j.sheetID, j.resolved = sheet.Properties.SheetId, true
			return j.sheetID, nil
		}
	}
	return 0, retry.Unrecoverable(errors.New("couldn't find sheet:" + j.sheetName))
}
