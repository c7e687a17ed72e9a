package ofx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdash/internal/model"
)

const statement = `OFXHEADER:100
DATA:OFXSGML
<OFX>
<BANKMSGSRSV1><STMTTRNRS><STMTRS><BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[-3:BRT]
<TRNAMT>-150.25
<FITID>abc123
<MEMO>  Office supplies  
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240107
<TRNAMT>3200.00
<MEMO>Client payment
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240108
<TRNAMT>10.00
<FITID>no-memo
</STMTTRN>
<STMTTRN>
<DTPOSTED>20240109
<TRNAMT>abc
<MEMO>Broken amount
</STMTTRN>
</BANKTRANLIST></STMTRS></STMTTRNRS></BANKMSGSRSV1>
</OFX>`

func TestParse(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	res := parse(statement, now)
	entries := res.Entries
	assert.Empty(t, res.Skipped)

	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		ID:          "abc123",
		Date:        "2024-01-05",
		Amount:      -150.25,
		Description: "Office supplies",
		Status:      StatusPending,
	}, entries[0])
	assert.Equal(t, model.EntryExpense, entries[0].Type())

	assert.Equal(t, "2024-01-07", entries[1].Date)
	assert.Equal(t, 3200.00, entries[1].Amount)
	assert.Equal(t, "temp-1706745600000000000-1", entries[1].ID)
	assert.Equal(t, model.EntryIncome, entries[1].Type())
}

func TestParse_XMLStyleClosingTags(t *testing.T) {
	doc := `<OFX><STMTTRN><DTPOSTED>20231231</DTPOSTED><TRNAMT>42.5</TRNAMT><FITID>x1</FITID><MEMO>Refund</MEMO></STMTTRN></OFX>`

	entries := Parse(doc)
	require.Len(t, entries, 1)
	assert.Equal(t, "x1", entries[0].ID)
	assert.Equal(t, "2023-12-31", entries[0].Date)
	assert.Equal(t, "Refund", entries[0].Description)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("<OFX></OFX>"))
}

func TestParse_BadDateSkipped(t *testing.T) {
	doc := "<STMTTRN>\n<DTPOSTED>2024\n<TRNAMT>1\n<MEMO>x\n</STMTTRN>"
	assert.Empty(t, Parse(doc))
}

func TestParse_DecimalComma(t *testing.T) {
	doc := "<STMTTRN>\n<DTPOSTED>20240105\n<TRNAMT>-150,00\n<FITID>c1\n<MEMO>Rent\n</STMTTRN>"

	entries := Parse(doc)
	require.Len(t, entries, 1)
	assert.Equal(t, -150.0, entries[0].Amount)
}

func TestParseStatement_ReportsSkippedBlocks(t *testing.T) {
	doc := "<STMTTRN>\n<DTPOSTED>20240105\n<TRNAMT>12.50\n<MEMO>ok\n</STMTTRN>\n" +
		"<STMTTRN>\n<DTPOSTED>20240106\n<TRNAMT>1.234,56\n<MEMO>thousands\n</STMTTRN>\n" +
		"<STMTTRN>\n<DTPOSTED>20240107\n<MEMO>no amount\n</STMTTRN>"

	res := ParseStatement(doc)
	require.Len(t, res.Entries, 1)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, 1, res.Skipped[0].Index)
	assert.Contains(t, res.Skipped[0].Reason, "1.234,56")
	assert.Equal(t, 2, res.Skipped[1].Index)
}
