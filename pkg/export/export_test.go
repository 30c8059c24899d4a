package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

func TestJSON(t *testing.T) {
	d, err := JSON("march", json.RawMessage(`[{"amount":12.5,"payee":"Bakery"}]`))
	require.NoError(t, err)
	assert.Equal(t, "march.json", d.FileName)
	assert.Equal(t, "text/plain;charset=utf-8", d.ContentType)
	assert.JSONEq(t, `{"transactions":[{"amount":12.5,"payee":"Bakery"}]}`, string(d.Body))
}

func TestJSON_DefaultNameAndNull(t *testing.T) {
	d, err := JSON("  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "transactions.json", d.FileName)
	assert.JSONEq(t, `{"transactions":null}`, string(d.Body))
}

func TestJSON_InvalidPayload(t *testing.T) {
	_, err := JSON("x", json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestCSV(t *testing.T) {
	d := CSV("", "date,amount\n2024-01-02,3.50\n")
	assert.Equal(t, "transactions.csv", d.FileName)
	assert.Equal(t, "date,amount\n2024-01-02,3.50\n", string(d.Body))

	d = CSV(`a/b"c`, "")
	assert.Equal(t, "a_b_c.csv", d.FileName)
}

func TestCSVFromRequest(t *testing.T) {
	d, err := CSVFromRequest(Request{FileName: "feb", Transactions: json.RawMessage(`"a,b\n1,2\n"`)})
	require.NoError(t, err)
	assert.Equal(t, "feb.csv", d.FileName)
	assert.Equal(t, "a,b\n1,2\n", string(d.Body))

	_, err = CSVFromRequest(Request{Transactions: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestWriteBatchCSV(t *testing.T) {
	batch := extract.Batch{
		{FileName: "a.pdf", Pages: extract.Pages{
			{{Text: "Date", X: 10, Y: 700.5, Width: 20, Height: 9}, {Text: "Amount, EUR", X: 300, Y: 700.5, Width: 40, Height: 9}},
			{{Text: "Total", X: 10, Y: 100, Width: 18, Height: 9}},
		}},
		{FileName: "b.pdf", Pages: extract.Pages{}, Error: "decode error"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBatchCSV(&buf, batch))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, BatchHeader, rows[0])
	assert.Equal(t, []string{"a.pdf", "0", "0", "Date", "10", "700.5", "20", "9"}, rows[1])
	assert.Equal(t, "Amount, EUR", rows[2][3])
	assert.Equal(t, []string{"a.pdf", "1", "0", "Total", "10", "100", "18", "9"}, rows[3])
	assert.Equal(t, "error: decode error", rows[4][3])
}
