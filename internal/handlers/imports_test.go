package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashmitsharp/homeledger-api/internal/services"
)

const statementCSV = "01/03/2025,HYDRO ONE,250.00,,1000.00\n01/04/2025,PAYROLL ACME CORP,,2500.00,3500.00\n"

func newImportApp(importer Importer, storage StatementStorage, userID string) *fiber.App {
	handler := NewImportHandler(importer, storage, services.NewFileValidator(1024*1024))

	app := newTestApp(userID)
	app.Get("/presigned-url", handler.GetPresignedURL)
	app.Post("/preview", handler.Preview)
	app.Post("/commit", handler.Commit)
	return app
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&result))
	return result
}

// multipartStatement builds a preview form with the given file part
func multipartStatement(t *testing.T, filename, contentType, content, accountID string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	if accountID != "" {
		require.NoError(t, writer.WriteField("bank_account_id", accountID))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func previewOK(_ context.Context, file io.Reader, filename string, accountID *int64) (*services.PreviewResult, error) {
	data, _ := io.ReadAll(file)
	return &services.PreviewResult{
		State:         services.StateReview,
		Filename:      filename,
		BankAccountID: accountID,
		Stats:         services.PreviewStats{TotalRows: strings.Count(string(data), "\n")},
		Rows:          []services.ReviewRow{},
	}, nil
}

func TestGetPresignedURL_Success(t *testing.T) {
	storage := &MockStorage{}
	var gotExpiry time.Duration
	storage.PresignUploadFunc = func(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
		gotExpiry = expiry
		return "https://s3.amazonaws.com/bucket/" + key + "?X-Amz-Signature=abc123", nil
	}
	app := newImportApp(&MockImporter{}, storage, "user123")

	req := httptest.NewRequest("GET", "/presigned-url?filename=jan.csv&content_type=text/csv", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decodeBody(t, resp.Body)
	assert.Contains(t, result["upload_url"].(string), "https://s3.amazonaws.com")
	assert.Contains(t, result["file_key"].(string), "statements/user123/")
	assert.Equal(t, float64(900), result["expires_in"].(float64))
	assert.Equal(t, PresignedURLExpiry, gotExpiry)
}

func TestGetPresignedURL_Errors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		userID     string
		storage    StatementStorage
		wantStatus int
		wantError  string
	}{
		{"missing filename", "?content_type=text/csv", "user123", &MockStorage{}, fiber.StatusBadRequest, "filename"},
		{"missing content type", "?filename=jan.csv", "user123", &MockStorage{}, fiber.StatusBadRequest, "content_type"},
		{"unsupported extension", "?filename=jan.pdf&content_type=text/csv", "user123", &MockStorage{}, fiber.StatusBadRequest, "unsupported file extension"},
		{"unsupported content type", "?filename=jan.csv&content_type=application/pdf", "user123", &MockStorage{}, fiber.StatusBadRequest, "unsupported file type"},
		{"no user", "?filename=jan.csv&content_type=text/csv", "", &MockStorage{}, fiber.StatusUnauthorized, "unauthorized"},
		{"storage not configured", "?filename=jan.csv&content_type=text/csv", "user123", nil, fiber.StatusServiceUnavailable, "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newImportApp(&MockImporter{}, tt.storage, tt.userID)

			resp, err := app.Test(httptest.NewRequest("GET", "/presigned-url"+tt.query, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			result := decodeBody(t, resp.Body)
			assert.Contains(t, result["error"].(string), tt.wantError)
		})
	}
}

func TestPreview_Multipart(t *testing.T) {
	var archivedKey string
	var archived []byte
	storage := &MockStorage{
		ArchiveFunc: func(_ context.Context, key string, body io.Reader, _ string) error {
			archivedKey = key
			archived, _ = io.ReadAll(body)
			return nil
		},
	}
	app := newImportApp(&MockImporter{PreviewFunc: previewOK}, storage, "user123")

	body, contentType := multipartStatement(t, "jan.csv", "text/csv", statementCSV, "3")
	req := httptest.NewRequest("POST", "/preview", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result services.PreviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, services.StateReview, result.State)
	assert.Equal(t, "jan.csv", result.Filename)
	require.NotNil(t, result.BankAccountID)
	assert.Equal(t, int64(3), *result.BankAccountID)
	assert.Equal(t, 2, result.Stats.TotalRows)
	assert.Equal(t, archivedKey, result.FileKey)
	assert.Equal(t, statementCSV, string(archived))
}

func TestPreview_MultipartWithoutStorage(t *testing.T) {
	app := newImportApp(&MockImporter{PreviewFunc: previewOK}, nil, "user123")

	body, contentType := multipartStatement(t, "jan.csv", fiber.MIMEOctetStream, statementCSV, "")
	req := httptest.NewRequest("POST", "/preview", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result services.PreviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Nil(t, result.BankAccountID)
	assert.Empty(t, result.FileKey)
}

func TestPreview_ArchiveFailureStillPreviews(t *testing.T) {
	storage := &MockStorage{
		ArchiveFunc: func(context.Context, string, io.Reader, string) error {
			return errors.New("bucket unavailable")
		},
	}
	app := newImportApp(&MockImporter{PreviewFunc: previewOK}, storage, "user123")

	body, contentType := multipartStatement(t, "jan.csv", "text/csv", statementCSV, "")
	req := httptest.NewRequest("POST", "/preview", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result services.PreviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Empty(t, result.FileKey)
}

func TestPreview_RejectsBadUploads(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		content     string
		accountID   string
		wantError   string
	}{
		{"wrong extension", "jan.pdf", "text/csv", statementCSV, "", "unsupported file extension"},
		{"binary content", "jan.csv", "text/csv", "\x00\x01\x02\x03binary", "", "unsupported file type"},
		{"mismatched content type", "jan.csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", statementCSV, "", "does not match"},
		{"bad account id", "jan.csv", "text/csv", statementCSV, "abc", "bank_account_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &MockImporter{PreviewFunc: func(context.Context, io.Reader, string, *int64) (*services.PreviewResult, error) {
				t.Error("importer should not be called")
				return nil, errors.New("unexpected call")
			}}
			app := newImportApp(importer, nil, "user123")

			body, contentType := multipartStatement(t, tt.filename, tt.contentType, tt.content, tt.accountID)
			req := httptest.NewRequest("POST", "/preview", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			result := decodeBody(t, resp.Body)
			assert.Equal(t, string(services.StateUpload), result["state"])
			assert.Contains(t, result["error"].(string), tt.wantError)
		})
	}
}

func TestPreview_FileKey(t *testing.T) {
	const key = "statements/user123/2025-01/1735689600-abcd1234-jan.csv"
	storage := &MockStorage{
		OpenFunc: func(_ context.Context, k string) (io.ReadCloser, error) {
			if k != key {
				return nil, errors.New("not found")
			}
			return io.NopCloser(strings.NewReader(statementCSV)), nil
		},
	}
	app := newImportApp(&MockImporter{PreviewFunc: previewOK}, storage, "user123")

	body, _ := json.Marshal(PreviewRequest{FileKey: key})
	req := httptest.NewRequest("POST", "/preview", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result services.PreviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "jan.csv", result.Filename)
	assert.Equal(t, key, result.FileKey)
}

func TestPreview_FileKeyErrors(t *testing.T) {
	tests := []struct {
		name       string
		fileKey    string
		storage    StatementStorage
		wantStatus int
		wantError  string
	}{
		{"missing key", "", &MockStorage{}, fiber.StatusBadRequest, "file_key is required"},
		{"another user's file", "statements/user456/2025-01/1-abcd1234-jan.csv", &MockStorage{}, fiber.StatusForbidden, "cannot access this file"},
		{"missing object", "statements/user123/2025-01/1-abcd1234-jan.csv", &MockStorage{}, fiber.StatusNotFound, "not found"},
		{"no storage", "statements/user123/2025-01/1-abcd1234-jan.csv", nil, fiber.StatusServiceUnavailable, "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newImportApp(&MockImporter{PreviewFunc: previewOK}, tt.storage, "user123")

			body, _ := json.Marshal(PreviewRequest{FileKey: tt.fileKey})
			req := httptest.NewRequest("POST", "/preview", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			result := decodeBody(t, resp.Body)
			assert.Contains(t, result["error"].(string), tt.wantError)
			if tt.wantStatus == fiber.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", result["code"])
			}
		})
	}
}

func TestPreview_ImporterErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty import", services.ErrEmptyImport, fiber.StatusUnprocessableEntity},
		{"unreadable", services.ErrUnreadableStatement, fiber.StatusBadRequest},
		{"unknown account", services.ErrUnknownBankAccount, fiber.StatusBadRequest},
		{"store failure", errors.New("connection refused"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &MockImporter{PreviewFunc: func(context.Context, io.Reader, string, *int64) (*services.PreviewResult, error) {
				return nil, tt.err
			}}
			app := newImportApp(importer, nil, "user123")

			body, contentType := multipartStatement(t, "jan.csv", "text/csv", statementCSV, "")
			req := httptest.NewRequest("POST", "/preview", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestPreview_MissingUserID(t *testing.T) {
	app := newImportApp(&MockImporter{PreviewFunc: previewOK}, nil, "")

	body, contentType := multipartStatement(t, "jan.csv", "text/csv", statementCSV, "")
	req := httptest.NewRequest("POST", "/preview", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeBody(t, resp.Body)["code"])
}

func TestCommit_Success(t *testing.T) {
	batchID := int64(12)
	var got services.CommitRequest
	importer := &MockImporter{CommitFunc: func(_ context.Context, req services.CommitRequest) (*services.CommitSummary, error) {
		got = req
		return &services.CommitSummary{
			State:           services.StateCommitted,
			BatchID:         &batchID,
			ExpensesCreated: 1,
			ExpenseTotal:    decimal.RequireFromString("250.00"),
			NetAmount:       decimal.RequireFromString("-250.00"),
			Message:         "Imported 1 expense",
		}, nil
	}}
	app := newImportApp(importer, nil, "user123")

	body := `{"filename":"jan.csv","rows":[{"index":0,"entry_type":"expense","date":"2025-01-03","vendor_name":"HYDRO ONE","amount":"250.00","category_id":4}]}`
	req := httptest.NewRequest("POST", "/commit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decodeBody(t, resp.Body)
	assert.Equal(t, string(services.StateCommitted), result["state"])
	assert.Equal(t, float64(12), result["batch_id"])
	assert.Equal(t, "Imported 1 expense", result["message"])

	require.Len(t, got.Rows, 1)
	assert.Equal(t, "jan.csv", got.Filename)
	assert.True(t, got.Rows[0].Amount.Equal(decimal.RequireFromString("250")))
	require.NotNil(t, got.Rows[0].CategoryID)
	assert.Equal(t, int64(4), *got.Rows[0].CategoryID)
}

func TestCommit_ReviewErrorReturnsToReview(t *testing.T) {
	importer := &MockImporter{CommitFunc: func(context.Context, services.CommitRequest) (*services.CommitSummary, error) {
		return nil, &services.ReviewError{Rows: map[int]map[string]string{
			1: {"category_id": "choose a category"},
		}}
	}}
	app := newImportApp(importer, nil, "user123")

	body := `{"filename":"jan.csv","rows":[{"index":1,"entry_type":"expense","date":"2025-01-03","vendor_name":"X","amount":"5"}]}`
	req := httptest.NewRequest("POST", "/commit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	result := decodeBody(t, resp.Body)
	assert.Equal(t, string(services.StateReview), result["state"])
	rows := result["rows"].(map[string]interface{})
	assert.Equal(t, "choose a category", rows["1"].(map[string]interface{})["category_id"])
}

func TestCommit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantState  services.ImportState
	}{
		{"invalid json", `{"rows":`, nil, fiber.StatusBadRequest, services.StateReview},
		{"no rows", `{"filename":"jan.csv","rows":[]}`, nil, fiber.StatusBadRequest, services.StateUpload},
		{"unknown account", `{"bank_account_id":99,"rows":[{"index":0}]}`, services.ErrUnknownBankAccount, fiber.StatusBadRequest, services.StateReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &MockImporter{CommitFunc: func(context.Context, services.CommitRequest) (*services.CommitSummary, error) {
				return nil, tt.err
			}}
			app := newImportApp(importer, nil, "user123")

			req := httptest.NewRequest("POST", "/commit", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			result := decodeBody(t, resp.Body)
			assert.Equal(t, string(tt.wantState), result["state"])
		})
	}
}

func TestCommit_WriteFailureIsInternal(t *testing.T) {
	importer := &MockImporter{CommitFunc: func(context.Context, services.CommitRequest) (*services.CommitSummary, error) {
		return nil, errors.New("deadlock detected")
	}}
	app := newImportApp(importer, nil, "user123")

	req := httptest.NewRequest("POST", "/commit", strings.NewReader(`{"rows":[{"index":0}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	result := decodeBody(t, resp.Body)
	assert.Equal(t, "INTERNAL_ERROR", result["code"])
}
