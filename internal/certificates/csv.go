package certificates

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/certforge/backend/internal/models"
)

// MaxCSVFileSize caps recipient list uploads (5MB).
const MaxCSVFileSize = 5 * 1024 * 1024

const utf8BOM = "\ufeff"

// ParseRecipients reads a recipient CSV. The header must name "name" and "email" columns
// (any case, any order, other columns ignored). Rows are returned as written, untrimmed
// values included; short rows yield empty fields.
func ParseRecipients(r io.Reader) ([]models.Recipient, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, models.Invalid("csv_file", "is empty")
	}
	if err != nil {
		return nil, models.Invalid("csv_file", fmt.Sprintf("unreadable header: %v", err))
	}
	nameCol, emailCol := -1, -1
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			if nameCol < 0 {
				nameCol = i
			}
		case "email":
			if emailCol < 0 {
				emailCol = i
			}
		}
	}
	if nameCol < 0 || emailCol < 0 {
		return nil, models.Invalid("csv_file", "CSV must contain 'name' and 'email' columns")
	}

	var out []models.Recipient
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.Invalid("csv_file", err.Error())
		}
		out = append(out, models.Recipient{Name: field(rec, nameCol), Email: field(rec, emailCol)})
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
