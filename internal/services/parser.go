package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// Column layout of the headerless statement export
const (
	colDate        = 0
	colDescription = 1
	colWithdrawal  = 2
	colDeposit     = 3
	// column 4 is the running balance and is ignored
)

// InternalTransferMarker marks a transfer between the owner's own accounts
const InternalTransferMarker = "TFR-TO C/C"

// dateFormats are tried in order; ISO wins for strings both could match
var dateFormats = []string{
	"2006-01-02", // YYYY-MM-DD
	"01/02/2006", // MM/DD/YYYY
	"1/2/2006",   // M/D/YYYY as some exports drop the leading zero
}

// ErrUnsupportedFile is returned for extensions the parser cannot read
var ErrUnsupportedFile = errors.New("unsupported file type")

// ParseResult is the output of parsing one statement file
type ParseResult struct {
	Candidates []models.TransactionCandidate
	Discarded  int
	Earliest   time.Time
	Latest     time.Time
}

// HasDateRange reports whether at least one dated row was parsed
func (r *ParseResult) HasDateRange() bool {
	return !r.Earliest.IsZero()
}

func (r *ParseResult) track(date time.Time) {
	if r.Earliest.IsZero() || date.Before(r.Earliest) {
		r.Earliest = date
	}
	if r.Latest.IsZero() || date.After(r.Latest) {
		r.Latest = date
	}
}

// Parser turns raw statement rows into transaction candidates
type Parser struct {
	location string
}

// NewParser creates a parser that stamps location on every candidate
func NewParser(location string) *Parser {
	if location == "" {
		location = models.DefaultLocation
	}
	return &Parser{location: location}
}

// ParseDate parses a statement date, trying each accepted format in order
func ParseDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)

	for _, format := range dateFormats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// ParseAmount parses an amount cell, dropping thousands separators and currency
// symbols, and returns its magnitude. ok is false for empty cells.
func ParseAmount(amountStr string) (decimal.Decimal, bool, error) {
	cleaned := strings.ReplaceAll(amountStr, ",", "")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false, nil
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid amount: %s", amountStr)
	}

	return amount.Abs(), true, nil
}

// ParseFile parses a statement, picking the reader from the file extension
func (p *Parser) ParseFile(file io.Reader, filename string) (*ParseResult, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return p.ParseCSV(file)
	case ".xlsx":
		return p.ParseXLSX(file)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}
}

// ParseCSV parses a headerless statement CSV. Malformed records are dropped.
func (p *Parser) ParseCSV(file io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	discarded := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				discarded++
				continue
			}
			return nil, fmt.Errorf("reading statement: %w", err)
		}
		rows = append(rows, row)
	}

	result := p.ParseRows(rows)
	result.Discarded += discarded
	return result, nil
}

// ParseXLSX parses the first sheet of a workbook laid out like the CSV export
func (p *Parser) ParseXLSX(file io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &ParseResult{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}

	return p.ParseRows(rows), nil
}

// ParseRows parses already-split records and tracks the file's date range
func (p *Parser) ParseRows(rows [][]string) *ParseResult {
	result := &ParseResult{}

	for _, row := range rows {
		candidate, ok := p.ParseRow(row)
		if !ok {
			result.Discarded++
			continue
		}
		candidate.Index = len(result.Candidates)
		result.Candidates = append(result.Candidates, candidate)
		result.track(candidate.Date)
	}

	return result
}

// ParseRow turns one record into a candidate. ok is false when the row must be dropped.
func (p *Parser) ParseRow(row []string) (models.TransactionCandidate, bool) {
	var txn models.TransactionCandidate

	if isEmptyRow(row) {
		return txn, false
	}

	description := strings.TrimSpace(field(row, colDescription))
	if strings.Contains(strings.ToUpper(description), InternalTransferMarker) {
		return txn, false
	}

	withdrawal, hasWithdrawal, _ := ParseAmount(field(row, colWithdrawal))
	deposit, hasDeposit, _ := ParseAmount(field(row, colDeposit))
	if !hasWithdrawal && !hasDeposit {
		return txn, false
	}

	date, err := ParseDate(strings.TrimPrefix(field(row, colDate), "\ufeff"))
	if err != nil {
		return txn, false
	}

	txn.Date = date
	txn.Description = description
	txn.Location = p.location

	// Both columns populated is anomalous; the withdrawal wins
	if hasWithdrawal {
		txn.Direction = models.DirectionExpense
		txn.Amount = withdrawal
	} else {
		txn.Direction = models.DirectionIncome
		txn.Amount = deposit
	}

	txn.RawData = strings.Join(row, ",")
	return txn, true
}

func field(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

// isEmptyRow checks if all fields in a row are empty
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
