package ingest

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

func TestSplitLine_QuotedCells(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"quoted comma", `t1,"Acme, Inc",ACC2`, []string{"t1", "Acme, Inc", "ACC2"}},
		{"doubled quotes", `t1,"say ""hi""",x`, []string{"t1", `say "hi"`, "x"}},
		{"whitespace trimmed", " a , b ,c ", []string{"a", "b", "c"}},
		{"empty cells", "a,,c", []string{"a", "", "c"}},
		// A dangling quote must not drop the row; the remainder is taken as-is.
		{"unbalanced quote", `a,"broken,c`, []string{"a", "broken,c"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitLine(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitLine(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseHeader_MissingColumns(t *testing.T) {
	_, err := ParseHeader("transaction_id,amount,timestamp")
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}

	h, err := ParseHeader("sender_id,receiver_id")
	if err != nil {
		t.Fatalf("minimal header rejected: %v", err)
	}
	row := ParseLine(h, "A,B")
	if row.SenderID != "A" || row.ReceiverID != "B" {
		t.Errorf("ParseLine = %+v, want sender A receiver B", row)
	}
}

func TestParseDocument_ParallelMatchesSequential(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("transaction_id,sender_id,receiver_id,amount,timestamp\n")
	for i := 0; i < 157; i++ {
		fmt.Fprintf(&sb, "t%d,ACC%d,ACC%d,%d,2026-01-01T10:00:00\n", i, i, i+1, 100+i)
	}
	text := sb.String()

	parallel, err := ParseDocument(text, 4)
	if err != nil {
		t.Fatalf("parallel parse failed: %v", err)
	}
	sequential, err := ParseDocument(text, 1)
	if err != nil {
		t.Fatalf("sequential parse failed: %v", err)
	}

	if len(parallel) != 157 {
		t.Fatalf("expected 157 rows, got %d", len(parallel))
	}
	if !reflect.DeepEqual(parallel, sequential) {
		t.Errorf("parallel and sequential parses disagree")
	}
}

func TestParseDocument_MalformedRowsRecovered(t *testing.T) {
	text := "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
		"t1,A,B,100,2026-01-01T10:00:00\n" +
		"t2,\"C,D,not-a-number,also-not-a-time\n" + // dangling quote, bad amount, bad time
		"\n" +
		"t3,E,F,50,\n"

	rows, err := ParseDocument(text, 2)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// Blank line dropped, malformed rows kept for normalization to sort out.
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	txs := Normalize(rows)
	for _, tx := range txs {
		if tx.SenderID == "" || tx.ReceiverID == "" {
			t.Errorf("normalized transaction with empty party: %+v", tx)
		}
	}
}

func TestNormalize_DropsEmptyParties(t *testing.T) {
	rows := []models.Row{
		{TransactionID: "t1", SenderID: "A", ReceiverID: "B", Amount: "100", Timestamp: "2026-01-01T10:00:00"},
		{TransactionID: "t2", SenderID: "", ReceiverID: "B", Amount: "100"},
		{TransactionID: "t3", SenderID: "A", ReceiverID: "  ", Amount: "100"},
		{TransactionID: "t4", SenderID: "C", ReceiverID: "D", Amount: "oops", Timestamp: "garbage"},
	}

	txs := Normalize(rows)
	if len(txs) != 2 {
		t.Fatalf("expected 2 accepted transactions, got %d", len(txs))
	}
	if txs[0].ID != "t1" || txs[1].ID != "t4" {
		t.Errorf("wrong rows accepted: %+v", txs)
	}
	// Unparseable amount defaults to zero, unparseable timestamp to unknown.
	if txs[1].Amount != 0 {
		t.Errorf("bad amount should normalize to 0, got %v", txs[1].Amount)
	}
	if txs[1].HasTimestamp() {
		t.Errorf("bad timestamp should normalize to unknown")
	}
}

func TestParseTimestampMS_Formats(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"2026-01-01T00:00:00Z", 1767225600000},
		{"2026-01-01T00:00:00", 1767225600000},
		{"2026-01-01 00:00:00", 1767225600000},
		{"2026-01-01", 1767225600000},
	}
	for _, tc := range cases {
		got := ParseTimestampMS(tc.in)
		if got != tc.want {
			t.Errorf("ParseTimestampMS(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if !math.IsNaN(ParseTimestampMS("not a time")) {
		t.Errorf("unparseable timestamp should be NaN")
	}
	if !math.IsNaN(ParseTimestampMS("")) {
		t.Errorf("empty timestamp should be NaN")
	}
}
