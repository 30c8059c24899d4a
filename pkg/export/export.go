// Package export builds the file downloads offered by the drop page: the edited
// transactions as JSON, pre-built CSV text, and a flat CSV dump of an extraction batch.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

// DefaultBaseName is used when the caller does not name the download.
const DefaultBaseName = "transactions"

const textContentType = "text/plain;charset=utf-8"

// Download is a file ready to be sent to the browser.
type Download struct {
	FileName    string
	ContentType string
	Body        []byte
}

// Request is the payload of both download requests.
// For JSON, Transactions is any JSON value; for CSV it must be the CSV text.
type Request struct {
	FileName     string          `json:"fileName"`
	Transactions json.RawMessage `json:"transactions"`
}

// JSON wraps transactions into {"transactions": ...} and names the file <base>.json.
func JSON(fileName string, transactions json.RawMessage) (Download, error) {
	if len(transactions) == 0 {
		transactions = json.RawMessage("null")
	}
	body, err := json.Marshal(struct {
		Transactions json.RawMessage `json:"transactions"`
	}{transactions})
	if err != nil {
		return Download{}, fmt.Errorf("invalid transactions: %w", err)
	}
	return Download{
		FileName:    baseName(fileName) + ".json",
		ContentType: textContentType,
		Body:        body,
	}, nil
}

// CSV passes already formatted CSV text through and names the file <base>.csv.
func CSV(fileName, transactions string) Download {
	return Download{
		FileName:    baseName(fileName) + ".csv",
		ContentType: textContentType,
		Body:        []byte(transactions),
	}
}

// CSVFromRequest decodes the transactions of req as a JSON string holding the CSV text.
func CSVFromRequest(req Request) (Download, error) {
	var text string
	if len(req.Transactions) > 0 {
		if err := json.Unmarshal(req.Transactions, &text); err != nil {
			return Download{}, fmt.Errorf("transactions must be a CSV string: %w", err)
		}
	}
	return CSV(req.FileName, text), nil
}

// BatchHeader is the header row written by WriteBatchCSV.
var BatchHeader = []string{"file", "page", "index", "text", "x", "y", "width", "height"}

// WriteBatchCSV writes one row per fragment, in batch order. Failed files in a
// partial batch are written as a single row carrying the error in the text column.
func WriteBatchCSV(w io.Writer, batch extract.Batch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BatchHeader); err != nil {
		return err
	}
	for _, f := range batch {
		if f.Error != "" {
			if err := cw.Write([]string{f.FileName, "", "", "error: " + f.Error, "", "", "", ""}); err != nil {
				return err
			}
			continue
		}
		for p, frags := range f.Pages {
			for i, fr := range frags {
				row := []string{
					f.FileName,
					extract.PageKey(p),
					strconv.Itoa(i),
					fr.Text,
					formatFloat(fr.X),
					formatFloat(fr.Y),
					formatFloat(fr.Width),
					formatFloat(fr.Height),
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func baseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultBaseName
	}
	// keep the name usable in a Content-Disposition header
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
