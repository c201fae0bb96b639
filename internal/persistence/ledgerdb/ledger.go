// Package ledgerdb keeps a queryable SQLite ledger of marketplace
// activity: completed trades, offer lifecycle events, and stockpile
// transactions. Writes are queued and batched on a single writer
// goroutine so callers never block on the database; the JSONL journal
// remains the source of truth.
package ledgerdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"aisociety.ai/internal/economy/inventory"
	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/resource"
)

const defaultQueueSize = 1024

type Ledger struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTrade      atomic.Uint64
	dropOfferEvent atomic.Uint64
	dropTxn        atomic.Uint64
}

type reqKind int

const (
	reqTrade reqKind = iota + 1
	reqOfferEvent
	reqTransaction
)

type req struct {
	kind reqKind

	trade market.Record
	offer offerEventRow
	txn   transactionRow
}

type offerEventRow struct {
	Event        string
	OfferID      string
	SellerID     string
	Kind         string
	Quantity     float64
	PricePerUnit float64
	Status       string
	AtNS         int64
}

type transactionRow struct {
	StockpileID string
	AgentID     string
	Kind        string
	Quantity    float64
	TS          float64
	IsDeposit   bool
}

func Open(path string, queueSize int) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		db: db,
		ch: make(chan req, queueSize),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary record.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			offer_id TEXT NOT NULL,
			seller TEXT NOT NULL,
			buyer TEXT NOT NULL,
			kind TEXT NOT NULL,
			quantity REAL NOT NULL,
			price_per_unit REAL NOT NULL,
			total REAL NOT NULL,
			fee REAL NOT NULL,
			at_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_kind_at ON trades(kind, at_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_seller ON trades(seller);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(buyer);`,
		`CREATE TABLE IF NOT EXISTS offer_events (
			event TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			seller TEXT NOT NULL,
			kind TEXT NOT NULL,
			quantity REAL NOT NULL,
			price_per_unit REAL NOT NULL,
			status TEXT NOT NULL,
			at_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_offer_events_offer ON offer_events(offer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_offer_events_at ON offer_events(at_ns);`,
		`CREATE TABLE IF NOT EXISTS stockpile_transactions (
			stockpile_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			quantity REAL NOT NULL,
			ts REAL NOT NULL,
			is_deposit INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stockpile_txn_pile ON stockpile_transactions(stockpile_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_stockpile_txn_agent ON stockpile_transactions(agent_id);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	var err error
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

func (l *Ledger) RecordTrade(rec market.Record) {
	if l == nil || l.closed.Load() {
		return
	}
	select {
	case l.ch <- req{kind: reqTrade, trade: rec}:
	default:
		// Drop if the writer falls behind; the journal remains the source of truth.
		l.dropTrade.Add(1)
	}
}

func (l *Ledger) RecordOfferEvent(evt market.Event) {
	if l == nil || l.closed.Load() {
		return
	}
	if evt.Offer == nil {
		return
	}
	r := offerEventRow{
		Event:        string(evt.Type),
		OfferID:      evt.Offer.ID,
		SellerID:     evt.Offer.SellerID,
		Kind:         string(evt.Offer.Kind),
		Quantity:     evt.Offer.Quantity,
		PricePerUnit: evt.Offer.PricePerUnit,
		Status:       string(evt.Offer.Status),
		AtNS:         evt.At.UnixNano(),
	}
	select {
	case l.ch <- req{kind: reqOfferEvent, offer: r}:
	default:
		l.dropOfferEvent.Add(1)
	}
}

func (l *Ledger) RecordTransaction(stockpileID string, tx inventory.Transaction) {
	if l == nil || l.closed.Load() {
		return
	}
	r := transactionRow{
		StockpileID: stockpileID,
		AgentID:     tx.AgentID,
		Kind:        string(tx.Kind),
		Quantity:    tx.Quantity,
		TS:          tx.Timestamp,
		IsDeposit:   tx.IsDeposit,
	}
	select {
	case l.ch <- req{kind: reqTransaction, txn: r}:
	default:
		l.dropTxn.Add(1)
	}
}

// OnMarketEvent routes marketplace events into the ledger. It is a
// non-blocking enqueue, safe to run under the marketplace lock.
func (l *Ledger) OnMarketEvent(evt market.Event) {
	if evt.Trade != nil {
		l.RecordTrade(*evt.Trade)
	}
	l.RecordOfferEvent(evt)
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTradeTotal       uint64
	DropOfferEventTotal  uint64
	DropTransactionTotal uint64
}

func (l *Ledger) Stats() Stats {
	return Stats{
		QueueDepth:           len(l.ch),
		QueueCapacity:        cap(l.ch),
		DropTradeTotal:       l.dropTrade.Load(),
		DropOfferEventTotal:  l.dropOfferEvent.Load(),
		DropTransactionTotal: l.dropTxn.Load(),
	}
}

func (l *Ledger) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTrade, _ := l.db.Prepare(`INSERT OR REPLACE INTO trades(id,offer_id,seller,buyer,kind,quantity,price_per_unit,total,fee,at_ns) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertOfferEvent, _ := l.db.Prepare(`INSERT INTO offer_events(event,offer_id,seller,kind,quantity,price_per_unit,status,at_ns) VALUES(?,?,?,?,?,?,?,?)`)
	insertTxn, _ := l.db.Prepare(`INSERT INTO stockpile_transactions(stockpile_id,agent_id,kind,quantity,ts,is_deposit) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertTrade != nil {
			_ = insertTrade.Close()
		}
		if insertOfferEvent != nil {
			_ = insertOfferEvent.Close()
		}
		if insertTxn != nil {
			_ = insertTxn.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range l.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTrade:
			t := r.trade
			if insertTrade != nil {
				if _, err := tx.Stmt(insertTrade).Exec(
					t.ID,
					t.OfferID,
					t.SellerID,
					t.BuyerID,
					string(t.Kind),
					t.Quantity,
					t.PricePerUnit,
					t.Total,
					t.Fee,
					t.At.UnixNano(),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqOfferEvent:
			o := r.offer
			if insertOfferEvent != nil {
				if _, err := tx.Stmt(insertOfferEvent).Exec(
					o.Event,
					o.OfferID,
					o.SellerID,
					o.Kind,
					o.Quantity,
					o.PricePerUnit,
					o.Status,
					o.AtNS,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqTransaction:
			t := r.txn
			if insertTxn != nil {
				deposited := 0
				if t.IsDeposit {
					deposited = 1
				}
				if _, err := tx.Stmt(insertTxn).Exec(
					t.StockpileID,
					t.AgentID,
					t.Kind,
					t.Quantity,
					t.TS,
					deposited,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// scanTrades converts rows from the trades table back into records.
func scanTrades(rows *sql.Rows) ([]market.Record, error) {
	var out []market.Record
	for rows.Next() {
		var rec market.Record
		var kind string
		var atNS int64
		if err := rows.Scan(&rec.ID, &rec.OfferID, &rec.SellerID, &rec.BuyerID, &kind, &rec.Quantity, &rec.PricePerUnit, &rec.Total, &rec.Fee, &atNS); err != nil {
			return nil, err
		}
		rec.Kind = resource.Kind(kind)
		rec.At = time.Unix(0, atNS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

const tradeCols = `id,offer_id,seller,buyer,kind,quantity,price_per_unit,total,fee,at_ns`

// RecentTrades returns the newest trades, newest first.
func (l *Ledger) RecentTrades(ctx context.Context, limit int) ([]market.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+tradeCols+` FROM trades ORDER BY at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesForKind returns the newest trades in one resource kind, newest first.
func (l *Ledger) TradesForKind(ctx context.Context, kind string, limit int) ([]market.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE kind=? ORDER BY at_ns DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesForAgent returns trades the agent took part in, on either side.
func (l *Ledger) TradesForAgent(ctx context.Context, agentID string, limit int) ([]market.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE seller=? OR buyer=? ORDER BY at_ns DESC LIMIT ?`, agentID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

type KindTotal struct {
	Kind   string
	Trades int
	Volume float64
	Value  float64
	Fees   float64
}

// KindTotals aggregates trade activity per resource kind, busiest first.
func (l *Ledger) KindTotals(ctx context.Context) ([]KindTotal, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, COUNT(*), SUM(quantity), SUM(total), SUM(fee) FROM trades GROUP BY kind ORDER BY SUM(total) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KindTotal
	for rows.Next() {
		var t KindTotal
		if err := rows.Scan(&t.Kind, &t.Trades, &t.Volume, &t.Value, &t.Fees); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type OfferEvent struct {
	Event        string
	OfferID      string
	SellerID     string
	Kind         string
	Quantity     float64
	PricePerUnit float64
	Status       string
	At           time.Time
}

func scanOfferEvents(rows *sql.Rows) ([]OfferEvent, error) {
	var out []OfferEvent
	for rows.Next() {
		var ev OfferEvent
		var atNS int64
		if err := rows.Scan(&ev.Event, &ev.OfferID, &ev.SellerID, &ev.Kind, &ev.Quantity, &ev.PricePerUnit, &ev.Status, &atNS); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atNS).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

const offerEventCols = `event,offer_id,seller,kind,quantity,price_per_unit,status,at_ns`

// RecentOfferEvents returns the newest offer lifecycle events, newest first.
func (l *Ledger) RecentOfferEvents(ctx context.Context, limit int) ([]OfferEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+offerEventCols+` FROM offer_events ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOfferEvents(rows)
}

// OfferHistory returns the full lifecycle of one offer, oldest first.
func (l *Ledger) OfferHistory(ctx context.Context, offerID string) ([]OfferEvent, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+offerEventCols+` FROM offer_events WHERE offer_id=? ORDER BY rowid ASC`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOfferEvents(rows)
}

type StockpileTransaction struct {
	StockpileID string
	AgentID     string
	Kind        string
	Quantity    float64
	TS          float64
	IsDeposit   bool
}

// StockpileHistory returns a stockpile's transactions, newest first.
func (l *Ledger) StockpileHistory(ctx context.Context, stockpileID string, limit int) ([]StockpileTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT stockpile_id,agent_id,kind,quantity,ts,is_deposit FROM stockpile_transactions WHERE stockpile_id=? ORDER BY rowid DESC LIMIT ?`, stockpileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockpileTransaction
	for rows.Next() {
		var t StockpileTransaction
		var deposited int
		if err := rows.Scan(&t.StockpileID, &t.AgentID, &t.Kind, &t.Quantity, &t.TS, &deposited); err != nil {
			return nil, err
		}
		t.IsDeposit = deposited != 0
		out = append(out, t)
	}
	return out, rows.Err()
}
