package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/muletrace-engine/pkg/models"
)

// Row Ingestion
//
// Normalizes delimited transaction exports into typed records. The splitter
// is deliberately lenient: a doubled quote inside a quoted cell is a literal
// quote, a comma inside a quoted cell is not a split point, and unbalanced
// quotes never abort the row. Rows survive malformed amounts and timestamps
// (amount defaults to 0, timestamp to unknown); only a missing sender or
// receiver drops the row.
//
// Batch parsing fans out over a fixed number of contiguous chunks and joins
// results in chunk order, so output is identical to a sequential parse.

// ErrMissingColumns is returned when the header lacks the sender_id or
// receiver_id column. The whole input is rejected; no rows are produced.
var ErrMissingColumns = errors.New("ingest: header is missing sender_id or receiver_id column")

// DefaultParseWorkers is the chunk fan-out used for batch loads.
const DefaultParseWorkers = 4

// SplitLine splits one delimited line into trimmed cells, honoring quoting.
func SplitLine(line string) []string {
	var cells []string
	var current strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == '"' {
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
			continue
		}
		if ch == ',' && !inQuotes {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}
	cells = append(cells, strings.TrimSpace(current.String()))
	return cells
}

// Header maps the named columns onto cell indexes. A value of -1 means the
// column is absent.
type Header struct {
	Sender   int
	Receiver int
	ID       int
	Amount   int
	Time     int
}

// ParseHeader resolves column positions by exact field name.
func ParseHeader(line string) (Header, error) {
	cells := SplitLine(line)
	h := Header{Sender: -1, Receiver: -1, ID: -1, Amount: -1, Time: -1}
	for i, name := range cells {
		switch name {
		case "sender_id":
			h.Sender = i
		case "receiver_id":
			h.Receiver = i
		case "transaction_id":
			h.ID = i
		case "amount":
			h.Amount = i
		case "timestamp":
			h.Time = i
		}
	}
	if h.Sender == -1 || h.Receiver == -1 {
		return Header{}, ErrMissingColumns
	}
	return h, nil
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

// ParseLine converts one data line into a raw row using the resolved header.
func ParseLine(h Header, line string) models.Row {
	cells := SplitLine(line)
	return models.Row{
		TransactionID: cellAt(cells, h.ID),
		SenderID:      cellAt(cells, h.Sender),
		ReceiverID:    cellAt(cells, h.Receiver),
		Amount:        cellAt(cells, h.Amount),
		Timestamp:     cellAt(cells, h.Time),
	}
}

// ParsePositional converts a headerless feed line with the fixed column order
// transaction_id,sender_id,receiver_id,amount,timestamp. Lines with fewer
// than five cells are rejected.
func ParsePositional(line string) (models.Row, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Row{}, false
	}
	cells := SplitLine(line)
	if len(cells) < 5 {
		return models.Row{}, false
	}
	return models.Row{
		TransactionID: cells[0],
		SenderID:      cells[1],
		ReceiverID:    cells[2],
		Amount:        cells[3],
		Timestamp:     cells[4],
	}, true
}

// ParseDocument parses a full delimited document (header plus data lines),
// fanning the data lines out over `workers` contiguous chunks. Results are
// concatenated in chunk order. A header error aborts the whole batch.
func ParseDocument(text string, workers int) ([]models.Row, error) {
	if workers <= 0 {
		workers = DefaultParseWorkers
	}
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, ErrMissingColumns
	}
	header, err := ParseHeader(lines[0])
	if err != nil {
		return nil, err
	}
	data := lines[1:]
	if len(data) == 0 {
		return []models.Row{}, nil
	}

	chunkSize := (len(data) + workers - 1) / workers
	results := make([][]models.Row, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= len(data) {
			break
		}
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		wg.Add(1)
		go func(slot int, chunk []string) {
			defer wg.Done()
			rows := make([]models.Row, 0, len(chunk))
			for _, line := range chunk {
				rows = append(rows, ParseLine(header, line))
			}
			results[slot] = rows
		}(w, data[start:end])
	}
	wg.Wait()

	var rows []models.Row
	for _, part := range results {
		rows = append(rows, part...)
	}
	if rows == nil {
		rows = []models.Row{}
	}
	return rows, nil
}

func splitLines(text string) []string {
	raw := strings.Split(strings.TrimSpace(text), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Normalize converts raw rows into accepted transactions. Rows whose sender
// or receiver trims to empty are dropped silently; everything else is kept,
// with amount defaulting to 0 and timestamp to unknown on parse failure.
func Normalize(rows []models.Row) []models.Transaction {
	txs := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		sender := strings.TrimSpace(r.SenderID)
		receiver := strings.TrimSpace(r.ReceiverID)
		if sender == "" || receiver == "" {
			continue
		}
		txs = append(txs, models.Transaction{
			ID:           strings.TrimSpace(r.TransactionID),
			SenderID:     sender,
			ReceiverID:   receiver,
			Amount:       parseAmount(r.Amount),
			TimestampMS:  ParseTimestampMS(r.Timestamp),
			RawAmount:    strings.TrimSpace(r.Amount),
			RawTimestamp: strings.TrimSpace(r.Timestamp),
		})
	}
	return txs
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// timeLayouts covers the formats that actually occur in exports. Layouts
// without a zone are interpreted as UTC so reruns are machine-independent.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestampMS parses an instant into unix milliseconds, returning NaN
// for empty or unparseable values.
func ParseTimestampMS(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return float64(t.UnixMilli())
		}
	}
	return math.NaN()
}
