package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/username/taxfolio/ledger/src/logger"
)

// importMediaTypes are the client-declared types accepted for a ledger CSV upload.
// Browsers label CSV files inconsistently, hence the Excel and plain-text entries.
var importMediaTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
}

// spreadsheetSignatures are container formats that are commonly uploaded by mistake in
// place of a CSV export.
var spreadsheetSignatures = []struct {
	magic []byte
	name  string
}{
	{[]byte("PK\x03\x04"), "zip archive (xlsx/ods)"},
	{[]byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1"), "OLE2 document (xls)"},
	{[]byte("%PDF-"), "PDF document"},
}

// sniffLen matches what http.DetectContentType considers.
const sniffLen = 512

// ValidateClientContentType checks the Content-Type the client declared for the upload part.
// Parameters such as charset are ignored.
func ValidateClientContentType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !importMediaTypes[strings.ToLower(mediaType)] {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for a ledger import", contentType)
	}
	return nil
}

// ValidateFileContentByMagicBytes sniffs the start of the upload, rejects spreadsheet and
// binary containers, and rewinds the file for the parser. It returns the detected media type.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", errors.New("file is nil")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", errors.New("file is empty")
	}

	for _, sig := range spreadsheetSignatures {
		if bytes.HasPrefix(head, sig.magic) {
			logger.L.Warn("Upload rejected by signature", "format", sig.name)
			return "application/octet-stream", fmt.Errorf("file is a %s, export the ledger as CSV first", sig.name)
		}
	}
	if !isText(head, n == sniffLen) {
		logger.L.Warn("Upload rejected: binary content in a CSV import")
		return "application/octet-stream", errors.New("file appears to be binary, not CSV text")
	}

	detected, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	switch detected {
	case "text/plain", "text/csv", "application/csv":
		logger.L.Debug("Upload content type validated", "detectedContentType", detected)
		return detected, nil
	}
	logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected)
	return detected, fmt.Errorf("detected file content type '%s' is not allowed", detected)
}

// isText reports whether buf is NUL-free UTF-8. When the buffer was cut at sniffLen, a
// multi-byte rune split at the end is not held against the file.
func isText(buf []byte, truncated bool) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	for i := 0; truncated && i < utf8.UTFMax-1 && len(buf) > 0 && !utf8.Valid(buf); i++ {
		buf = buf[:len(buf)-1]
	}
	return utf8.Valid(buf)
}
