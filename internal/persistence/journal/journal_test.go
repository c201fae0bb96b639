package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/resource"
	"aisociety.ai/internal/protocol"
)

type line struct {
	Seq  int    `json:"seq"`
	Note string `json:"note"`
}

func readLines(t *testing.T, path string, compressed bool) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var sc *bufio.Scanner
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		sc = bufio.NewScanner(dec)
	} else {
		sc = bufio.NewScanner(f)
	}
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func singleFile(t *testing.T, dir, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("files matching %s: got %d want 1", pattern, len(matches))
	}
	return matches[0]
}

func TestWriterPlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "market", false)
	for i := 0; i < 3; i++ {
		if err := w.Write(line{Seq: i, Note: "entry"}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, singleFile(t, dir, "market-*.jsonl"), false)
	if len(lines) != 3 {
		t.Fatalf("lines: got %d want 3", len(lines))
	}
	var got line
	if err := json.Unmarshal([]byte(lines[2]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Seq != 2 || got.Note != "entry" {
		t.Fatalf("last line: got %+v", got)
	}
}

func TestWriterCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "market", true)
	for i := 0; i < 5; i++ {
		if err := w.Write(line{Seq: i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, singleFile(t, dir, "market-*.jsonl.zst"), true)
	if len(lines) != 5 {
		t.Fatalf("lines: got %d want 5", len(lines))
	}
}

func TestWriterReopensAfterClose(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "market", false)
	if err := w.Write(line{Seq: 0}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Write(line{Seq: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Both writes land in the same hourly file, appended.
	lines := readLines(t, singleFile(t, dir, "market-*.jsonl"), false)
	if len(lines) != 2 {
		t.Fatalf("lines: got %d want 2", len(lines))
	}
}

func TestMarketJournalWritesWireEvents(t *testing.T) {
	dir := t.TempDir()
	j := NewMarketJournal(dir, true)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	j.OnMarketEvent(market.Event{
		Type: market.EventOfferCreated,
		At:   at,
		Kind: resource.Wood,
		Offer: &market.Offer{
			ID:               "o1",
			SellerID:         "s1",
			Kind:             resource.Wood,
			Quantity:         10,
			OriginalQuantity: 10,
			PricePerUnit:     5,
			CreatedAt:        at,
			Status:           market.StatusPending,
		},
	})
	j.OnMarketEvent(market.Event{
		Type: market.EventTradeCompleted,
		At:   at,
		Kind: resource.Wood,
		Trade: &market.Record{
			ID: "t1", OfferID: "o1", SellerID: "s1", BuyerID: "b1",
			Kind: resource.Wood, Quantity: 4, PricePerUnit: 5, Total: 20, At: at,
		},
	})
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if j.WriteErrors() != 0 {
		t.Fatalf("write errors: got %d want 0", j.WriteErrors())
	}

	lines := readLines(t, singleFile(t, filepath.Join(dir, "market"), "market-*.jsonl.zst"), true)
	if len(lines) != 2 {
		t.Fatalf("lines: got %d want 2", len(lines))
	}
	var first protocol.MarketEventMsg
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Type != protocol.TypeMarketEvent || first.Event != string(market.EventOfferCreated) {
		t.Fatalf("first event: got %s/%s", first.Type, first.Event)
	}
	if first.Offer == nil || first.Offer.ID != "o1" {
		t.Fatalf("first offer: got %+v", first.Offer)
	}
	var second protocol.MarketEventMsg
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if second.Trade == nil || second.Trade.Total != 20 {
		t.Fatalf("second trade: got %+v", second.Trade)
	}
}
