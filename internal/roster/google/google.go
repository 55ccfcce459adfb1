package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"ownerportal/internal/core"
	ports "ownerportal/internal/roster"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	rosterSheet   string
	portalSheet   string
}

// Ensure interface conformance
var (
	_ ports.HomeownerReader       = (*Client)(nil)
	_ ports.PortalUserReader      = (*Client)(nil)
	_ ports.HomeownerWriter       = (*Client)(nil)
	_ ports.PortalUserWriter      = (*Client)(nil)
	_ ports.PortalUserDeactivator = (*Client)(nil)
)

// NewFromEnv creates a client for the back-office roster workbook.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: ROSTER_SHEET_NAME (default "Homeowners"),
// PORTAL_SHEET_NAME (default "Portal Accounts").
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	rosterSheet := strings.TrimSpace(os.Getenv("ROSTER_SHEET_NAME"))
	if rosterSheet == "" {
		rosterSheet = "Homeowners"
	}
	portalSheet := strings.TrimSpace(os.Getenv("PORTAL_SHEET_NAME"))
	if portalSheet == "" {
		portalSheet = "Portal Accounts"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		rosterSheet:   rosterSheet,
		portalSheet:   portalSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)
	return service, nil
}

// ListHomeowners reads the roster tab. Rows with a blank or malformed ID are
// skipped, which also covers the header row.
func (c *Client) ListHomeowners(ctx context.Context) ([]core.Homeowner, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.rosterSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRoster(resp.Values), nil
}

// ListPortalUsers reads the portal accounts tab.
func (c *Client) ListPortalUsers(ctx context.Context) ([]core.PortalUser, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.portalSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parsePortalAccounts(resp.Values), nil
}

// AppendHomeowner writes the owner as a new row on the roster tab and
// returns its range reference.
func (c *Client) AppendHomeowner(ctx context.Context, h core.Homeowner) (string, error) {
	if err := h.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	nextRow, err := c.nextFreeRow(ctx, c.rosterSheet)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A%d:E%d", c.rosterSheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{h.ID, h.FirstName, h.LastName, h.Email, triStateCell(h.Inactive)}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return rng, nil
}

// AppendPortalUser writes the account as a new row on the portal tab. When
// the account carries no ID (direct sheets backend), the next free one is
// assigned from the existing column.
func (c *Client) AppendPortalUser(ctx context.Context, u core.PortalUser) (string, error) {
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	colRng := fmt.Sprintf("%s!A:A", c.portalSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, colRng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", colRng, err)
	}
	nextRow := len(resp.Values) + 1
	if u.ID == 0 {
		var max int64
		for _, row := range resp.Values {
			if len(row) == 0 {
				continue
			}
			if id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64); err == nil && id > max {
				max = id
			}
		}
		u.ID = max + 1
	}

	rng := fmt.Sprintf("%s!A%d:E%d", c.portalSheet, nextRow, nextRow)
	registered := time.Now().Format("2006-01-02")
	vr := &gsheet.ValueRange{Values: [][]any{{u.ID, u.HomeownerID, u.Email, flagCell(u.Active), registered}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return rng, nil
}

// DeactivatePortalUser locates the account row by ID and overwrites its
// Active cell. The row itself stays, so history is preserved.
func (c *Client) DeactivatePortalUser(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	colRng := fmt.Sprintf("%s!A:A", c.portalSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, colRng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", colRng, err)
	}
	row := -1
	for i, r := range resp.Values {
		if len(r) == 0 {
			continue
		}
		if v, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(r[0])), 10, 64); err == nil && v == id {
			row = i + 1 // sheet rows are 1-based
			break
		}
	}
	if row == -1 {
		return fmt.Errorf("portal account %d not found in sheet %s", id, c.portalSheet)
	}

	rng := fmt.Sprintf("%s!D%d", c.portalSheet, row)
	vr := &gsheet.ValueRange{Values: [][]any{{flagCell(false)}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return nil
}

// nextFreeRow returns the first row after the used range of column A.
func (c *Client) nextFreeRow(ctx context.Context, sheet string) (int, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	return len(resp.Values) + 1, nil
}
