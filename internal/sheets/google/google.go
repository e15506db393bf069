// Package google mirrors period documents into a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"halfmonth/internal/core"
	ports "halfmonth/internal/sheets"
)

const maxTitleLen = 100

var _ ports.PeriodMirror = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New wraps an already configured Sheets service endpoint.
func New(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// NewFromServiceAccount authenticates with service account credentials,
// given inline or as a file path, over a pooled HTTP transport.
func NewFromServiceAccount(ctx context.Context, spreadsheetID, credentialsJSON, credentialsFile string) (*Client, error) {
	creds := []byte(strings.TrimSpace(credentialsJSON))
	if len(creds) == 0 {
		if credentialsFile == "" {
			credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		}
		if credentialsFile == "" {
			return nil, errors.New("missing service account credentials")
		}
		raw, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = raw
	}

	cfg, err := goauth.CredentialsFromJSON(ctx, creds, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	pooledCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauth2.NewClient(pooledCtx, cfg.TokenSource)

	slog.InfoContext(ctx, "Google Sheets mirror configured", "spreadsheet_id", spreadsheetID)
	return New(ctx, spreadsheetID, goption.WithHTTPClient(httpClient))
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// MirrorPeriod rewrites the period's tab, creating it on first use.
func (c *Client) MirrorPeriod(ctx context.Context, userID string, p core.Period) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := tabTitle(userID, p.Key)
	if _, err := c.ensureSheet(ctx, title); err != nil {
		return err
	}

	rng := a1Range(title, "A:C")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	vr := &gsheet.ValueRange{Values: periodRows(p)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1Range(title, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", title, err)
	}
	slog.DebugContext(ctx, "Mirrored period", "user_id", userID, "period_key", p.Key.String(), "rows", len(vr.Values))
	return nil
}

// RemovePeriod deletes the period's tab. A missing tab is not an error.
func (c *Client) RemovePeriod(ctx context.Context, userID string, key core.PeriodKey) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := tabTitle(userID, key)
	id, ok, err := c.lookupSheet(ctx, title)
	if err != nil || !ok {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id, ForceSendFields: []string{"SheetId"}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete sheet %s: %w", title, err)
	}
	c.mu.Lock()
	delete(c.sheetIDs, title)
	c.mu.Unlock()
	slog.DebugContext(ctx, "Removed mirrored period", "user_id", userID, "period_key", key.String())
	return nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) (int64, error) {
	id, ok, err := c.lookupSheet(ctx, title)
	if err != nil || ok {
		return id, err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	c.mu.Lock()
	c.sheetIDs[title] = id
	c.mu.Unlock()
	return id, nil
}

// lookupSheet finds a tab by title, consulting the spreadsheet on a cache
// miss.
func (c *Client) lookupSheet(ctx context.Context, title string) (int64, bool, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, true, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties == nil {
			continue
		}
		c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}
	id, ok = c.sheetIDs[title]
	return id, ok, nil
}

// tabTitle names a period's tab: the period identifier then the user.
func tabTitle(userID string, key core.PeriodKey) string {
	t := key.String() + " " + userID
	if r := []rune(t); len(r) > maxTitleLen {
		t = string(r[:maxTitleLen])
	}
	return t
}

func a1Range(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

// periodRows lays out a period: header, one row per expense, then totals.
func periodRows(p core.Period) [][]any {
	rows := make([][]any, 0, len(p.Expenses)+6)
	rows = append(rows, []any{core.DisplayLabelWithYear(p.Key), "", ""})
	rows = append(rows, []any{"Description", "Amount", "Category"})
	for _, e := range p.Expenses {
		rows = append(rows, []any{e.Description, e.Amount.InexactFloat64(), string(e.Category.OrDefault())})
	}
	rows = append(rows,
		[]any{"", "", ""},
		[]any{"Total", core.Total(p.Expenses).InexactFloat64(), ""},
		[]any{"Bank balance", p.BankBalance.InexactFloat64(), ""},
		[]any{"Remaining", core.Remaining(p).InexactFloat64(), ""},
	)
	return rows
}
