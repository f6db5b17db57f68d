package sink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/pkg/config"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

const (
	sheetsSinkName   = "sheets"
	valueInputOption = "USER_ENTERED"
)

// SheetsOptions configures the spreadsheet order log.
type SheetsOptions struct {
	SpreadsheetID string
	Range         string // e.g. "Orders!A:G"
	// ClientOptions are passed to the Sheets client, usually credentials.
	ClientOptions []option.ClientOption
	Retries       uint64
	Backoff       time.Duration
}

// SheetsSink appends one row per order to a Google spreadsheet.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	rng           string
	retries       uint64
	backoff       time.Duration
	logger        *zap.Logger
}

// NewSheetsSink creates the Sheets client.
func NewSheetsSink(ctx context.Context, opts SheetsOptions, logger *zap.Logger) (*SheetsSink, error) {
	if opts.SpreadsheetID == "" {
		return nil, apperrors.NewConfigMissingRequired("GOOGLE_SHEETS_ID")
	}
	if opts.Range == "" {
		opts.Range = "Sheet1!A:G"
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc, err := sheets.NewService(ctx, opts.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		rng:           opts.Range,
		retries:       opts.Retries,
		backoff:       opts.Backoff,
		logger:        logger,
	}, nil
}

// SheetsCredentials reads the service account key from the configured
// file or base64 variable.
func SheetsCredentials(cfg *config.Config) ([]byte, error) {
	if cfg.GoogleSheetsCredentials64 != "" {
		data, err := base64.StdEncoding.DecodeString(cfg.GoogleSheetsCredentials64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode GOOGLE_SHEETS_CREDENTIALS_BASE64: %w", err)
		}
		return data, nil
	}
	if cfg.GoogleSheetsCredentialsPath != "" {
		data, err := os.ReadFile(cfg.GoogleSheetsCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
		}
		return data, nil
	}
	return nil, apperrors.NewConfigMissingRequired("GOOGLE_SHEETS_CREDENTIALS_PATH")
}

// Name implements Named.
func (s *SheetsSink) Name() string { return sheetsSinkName }

// Submit appends the order row, retrying rate limits and server errors.
func (s *SheetsSink) Submit(ctx context.Context, r order.Receipt) error {
	row := SheetRow(r)
	values := &sheets.ValueRange{Values: [][]interface{}{row}}

	attempt := 0
	err := retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		attempt++
		_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng, values).
			ValueInputOption(valueInputOption).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err == nil {
			return nil
		}
		if retryableSheetsError(err) {
			s.logger.Warn("Sheets append failed, retrying",
				zap.String("order_id", r.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return apperrors.NewSinkFailed(sheetsSinkName, retryableSheetsError(err), err)
	}

	s.logger.Info("Order row appended",
		zap.String("order_id", r.OrderID),
		zap.Int("attempts", attempt),
	)
	return nil
}

// EnsureHeaders writes the header row when the sheet is empty. Failures
// are not fatal; orders can still be appended.
func (s *SheetsSink) EnsureHeaders(ctx context.Context) error {
	headerRange := sheetName(s.rng) + "!A1:G1"
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet headers: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	row := make([]interface{}, len(SheetHeaders))
	for i, h := range SheetHeaders {
		row[i] = h
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet headers: %w", err)
	}
	s.logger.Info("Order sheet headers created")
	return nil
}

func (s *SheetsSink) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.backoff)
	return retry.WithMaxRetries(s.retries, b)
}

func retryableSheetsError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sheetName(rng string) string {
	name, _, _ := strings.Cut(rng, "!")
	return name
}
