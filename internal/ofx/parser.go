// Package ofx extracts bank transactions from OFX statements.
//
// Only the STMTTRN blocks are read; the surrounding SGML/XML envelope is
// ignored, so both OFX 1.x and 2.x files work.
package ofx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"opsdash/internal/model"
)

const StatusPending = "pending"

// Entry is one parsed transaction awaiting confirmation. Amount keeps the
// sign from the statement: negative values are debits.
type Entry struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
}

// Type maps the sign of the amount to an entry type.
func (e Entry) Type() model.EntryType {
	if e.Amount < 0 {
		return model.EntryExpense
	}
	return model.EntryIncome
}

// Skip describes a transaction block that was dropped. Index counts
// STMTTRN blocks from 0.
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result is a parsed statement.
type Result struct {
	Entries []Entry
	Skipped []Skip
}

// SGML files omit closing tags, so a value also ends at the line break.
var (
	blockRe  = regexp.MustCompile(`(?s)<STMTTRN>.*?</STMTTRN>`)
	amountRe = regexp.MustCompile(`<TRNAMT>([^<\r\n]*)`)
	dateRe   = regexp.MustCompile(`<DTPOSTED>([^<\r\n]*)`)
	memoRe   = regexp.MustCompile(`<MEMO>([^<\r\n]*)`)
	fitidRe  = regexp.MustCompile(`<FITID>([^<\r\n]*)`)
)

// Parse returns the transactions in statement order. Blocks without an
// amount, posting date or memo are skipped, as are blocks whose amount or
// date cannot be read.
func Parse(content string) []Entry {
	return parse(content, time.Now()).Entries
}

// ParseStatement is Parse plus the list of dropped blocks.
func ParseStatement(content string) Result {
	return parse(content, time.Now())
}

func parse(content string, now time.Time) Result {
	res := Result{Entries: make([]Entry, 0)}
	for n, block := range blockRe.FindAllString(content, -1) {
		rawAmount := field(amountRe, block)
		rawDate := field(dateRe, block)
		memo := field(memoRe, block)
		if rawAmount == "" || rawDate == "" || memo == "" {
			res.Skipped = append(res.Skipped, Skip{Index: n, Reason: "missing TRNAMT, DTPOSTED or MEMO"})
			continue
		}

		amount, ok := parseAmount(rawAmount)
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Index: n, Reason: fmt.Sprintf("unreadable amount %q", strings.TrimSpace(rawAmount))})
			continue
		}
		date, ok := postedDate(rawDate)
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Index: n, Reason: fmt.Sprintf("unreadable date %q", strings.TrimSpace(rawDate))})
			continue
		}

		id := strings.TrimSpace(field(fitidRe, block))
		if id == "" {
			id = fmt.Sprintf("temp-%d-%d", now.UnixNano(), n)
		}

		res.Entries = append(res.Entries, Entry{
			ID:          id,
			Date:        date,
			Amount:      amount,
			Description: strings.TrimSpace(memo),
			Status:      StatusPending,
		})
	}
	return res
}

// parseAmount accepts a decimal comma ("-150,00") when the value has no
// decimal point.
func parseAmount(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func field(re *regexp.Regexp, block string) string {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return m[1]
}

// postedDate reads the YYYYMMDD prefix of a DTPOSTED value
// (YYYYMMDDHHMMSS[.XXX][TZ]).
func postedDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 8 {
		return "", false
	}
	d, err := time.Parse("20060102", raw[:8])
	if err != nil {
		return "", false
	}
	return d.Format(model.DateLayout), true
}
