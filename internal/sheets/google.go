package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/dakshaarvind-fetch/RealEstate/internal/config"
	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
)

// GoogleExporter creates spreadsheets in the requesting user's Drive
// using credentials obtained through the OAuth device flow.
type GoogleExporter struct {
	clientJSON string
	clientFile string
	shareEmail string

	tokens *jsonFileStore[storedToken]
	flows  *jsonFileStore[deviceFlow]

	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	// endpoint overrides the Google OAuth endpoint in tests.
	endpoint oauth2.Endpoint
}

// NewGoogleExporter builds an exporter from configuration.
func NewGoogleExporter(cfg config.Config, logger *slog.Logger) *GoogleExporter {
	return &GoogleExporter{
		clientJSON: cfg.GoogleClientJSON,
		clientFile: cfg.GoogleClientFile,
		shareEmail: cfg.SheetShareEmail,
		tokens:     newJSONFileStore[storedToken](cfg.TokenStoreFile),
		flows:      newJSONFileStore[deviceFlow](cfg.DeviceStoreFile),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// AuthStatus reports whether the user has Google connected, returning
// the device-flow instructions when they don't.
func (e *GoogleExporter) AuthStatus(ctx context.Context, userID string) (string, error) {
	_, err := e.userToken(ctx, userID)
	if err == nil {
		return ConnectedMessage, nil
	}
	var authErr *AuthRequiredError
	if errors.As(err, &authErr) {
		return authErr.Instructions, nil
	}
	return "", err
}

// Export writes rows into a new spreadsheet and returns its URL.
func (e *GoogleExporter) Export(ctx context.Context, rows []listings.Listing, location, listingType, userID string) (string, error) {
	tok, err := e.userToken(ctx, userID)
	if err != nil {
		return "", err
	}
	source := oauth2.StaticTokenSource(tok)

	sheetsSvc, err := sheets.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return "", fmt.Errorf("create sheets service: %w", err)
	}

	timestamp := e.now().Format("2006-01-02 15:04")
	spreadsheet, err := sheetsSvc.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: SheetTitle(location, listingType, timestamp),
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: "Listings"}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}

	values := buildValues(rows, location, timestamp)
	_, err = sheetsSvc.Spreadsheets.Values.Update(
		spreadsheet.SpreadsheetId, "Listings!A1",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write spreadsheet values: %w", err)
	}

	if err := e.share(ctx, source, spreadsheet.SpreadsheetId); err != nil {
		return "", err
	}

	e.logger.Info("sheet created", "user_id", userID, "rows", len(rows), "url", spreadsheet.SpreadsheetUrl)
	return spreadsheet.SpreadsheetUrl, nil
}

// share makes the sheet link-readable, and optionally grants write
// access to the configured email.
func (e *GoogleExporter) share(ctx context.Context, source oauth2.TokenSource, spreadsheetID string) error {
	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return fmt.Errorf("create drive service: %w", err)
	}

	_, err = driveSvc.Permissions.Create(spreadsheetID, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("share spreadsheet: %w", err)
	}

	if e.shareEmail != "" {
		_, err = driveSvc.Permissions.Create(spreadsheetID, &drive.Permission{
			Type:         "user",
			Role:         "writer",
			EmailAddress: e.shareEmail,
		}).Context(ctx).Do()
		if err != nil {
			// Optional courtesy share; the sheet still works without it.
			e.logger.Warn("share with configured email failed", "email", e.shareEmail, "error", err)
		}
	}
	return nil
}

func buildValues(rows []listings.Listing, location, timestamp string) [][]any {
	values := make([][]any, 0, len(rows)+2)
	values = append(values, []any{
		fmt.Sprintf("Found %d properties in %s | Generated %s", len(rows), location, timestamp),
	})

	header := make([]any, len(sheetColumns))
	for i, col := range sheetColumns {
		header[i] = col
	}
	values = append(values, header)

	for _, row := range rows {
		values = append(values, rowValues(row))
	}
	return values
}
