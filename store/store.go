// Copyright (c) 2024 Neomantra Corp
//
// Package store is the relational persistence layer: batched appends for
// the three snapshot families, an upsert for the securities master, and a
// conditional insert for bhavcopy rows. Prepared statements are created
// once at construction and reused for every batch.

package nsefeed_store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

// batchSize caps how many rows go into a single transaction, bounding
// memory and lock-hold time for very large snapshot files.
const batchSize = 1000

// Store wraps a *sql.DB with the schema and prepared statements this
// service needs. It also backs the ledger package, which shares the same
// underlying *sql.DB via DB().
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmtMarket      *sql.Stmt
	stmtIndex       *sql.Stmt
	stmtCallAuction *sql.Stmt
	stmtSecurities  *sql.Stmt
	stmtBhavcopy    *sql.Stmt
}

// NewStore opens dsn (a SQLite DSN/path) and prepares the schema and
// statements this service needs.
func NewStore(dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindPersistence, "NewStore", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, nsefeed.NewError(nsefeed.ErrorKindPersistence, "NewStore", err)
	}
	if err := s.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, nsefeed.NewError(nsefeed.ErrorKindPersistence, "NewStore", err)
	}
	logger.Info("store initialized", "dsn", dsn)
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}

func (s *Store) prepareStatements() error {
	var err error
	if s.stmtMarket, err = s.db.Prepare(insertMarketQuery); err != nil {
		return fmt.Errorf("prepare market statement: %w", err)
	}
	if s.stmtIndex, err = s.db.Prepare(insertIndexQuery); err != nil {
		return fmt.Errorf("prepare index statement: %w", err)
	}
	if s.stmtCallAuction, err = s.db.Prepare(insertCallAuctionQuery); err != nil {
		return fmt.Errorf("prepare call auction statement: %w", err)
	}
	if s.stmtSecurities, err = s.db.Prepare(upsertSecuritiesQuery); err != nil {
		return fmt.Errorf("prepare securities statement: %w", err)
	}
	if s.stmtBhavcopy, err = s.db.Prepare(insertBhavcopyQuery); err != nil {
		return fmt.Errorf("prepare bhavcopy statement: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB, so the ledger package (and anything
// else that needs the same on-disk file) can share the connection pool
// instead of opening a second handle to the same SQLite file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the prepared statements and the underlying *sql.DB.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtMarket, s.stmtIndex, s.stmtCallAuction, s.stmtSecurities, s.stmtBhavcopy} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS market_snapshots (
	security_token INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	last_traded_price INTEGER NOT NULL,
	best_buy_quantity INTEGER NOT NULL,
	best_buy_price INTEGER NOT NULL,
	best_sell_quantity INTEGER NOT NULL,
	best_sell_price INTEGER NOT NULL,
	total_traded_quantity INTEGER NOT NULL,
	average_traded_price INTEGER NOT NULL,
	open_price INTEGER NOT NULL,
	high_price INTEGER NOT NULL,
	low_price INTEGER NOT NULL,
	close_price INTEGER NOT NULL,
	interval_open_price INTEGER NOT NULL,
	interval_high_price INTEGER NOT NULL,
	interval_low_price INTEGER NOT NULL,
	interval_close_price INTEGER NOT NULL,
	interval_total_traded_quantity INTEGER NOT NULL,
	indicative_close_price INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_snapshots_token_ts ON market_snapshots(security_token, timestamp);

CREATE TABLE IF NOT EXISTS index_snapshots (
	index_token INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	open_index_value INTEGER NOT NULL,
	current_index_value INTEGER NOT NULL,
	high_index_value INTEGER NOT NULL,
	low_index_value INTEGER NOT NULL,
	percentage_change INTEGER NOT NULL,
	interval_open_index_value INTEGER NOT NULL,
	interval_high_index_value INTEGER NOT NULL,
	interval_low_index_value INTEGER NOT NULL,
	interval_close_index_value INTEGER NOT NULL,
	indicative_close_index_value INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_index_snapshots_token_ts ON index_snapshots(index_token, timestamp);

CREATE TABLE IF NOT EXISTS call_auction_snapshots (
	security_token INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	last_traded_price INTEGER NOT NULL,
	best_buy_quantity INTEGER NOT NULL,
	best_buy_price INTEGER NOT NULL,
	buy_bbmm_flag INTEGER NOT NULL,
	best_sell_quantity INTEGER NOT NULL,
	best_sell_price INTEGER NOT NULL,
	sell_bbmm_flag INTEGER NOT NULL,
	total_traded_quantity INTEGER NOT NULL,
	indicative_traded_quantity INTEGER NOT NULL,
	average_traded_price INTEGER NOT NULL,
	first_open_price INTEGER NOT NULL,
	open_price INTEGER NOT NULL,
	high_price INTEGER NOT NULL,
	low_price INTEGER NOT NULL,
	close_price INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ca_snapshots_token_ts ON call_auction_snapshots(security_token, timestamp);

CREATE TABLE IF NOT EXISTS securities (
	token_number INTEGER PRIMARY KEY,
	symbol TEXT NOT NULL,
	series TEXT NOT NULL,
	issued_capital REAL NOT NULL,
	settlement_cycle INTEGER NOT NULL,
	company_name TEXT NOT NULL,
	permitted_to_trade INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_securities_symbol ON securities(symbol);

CREATE TABLE IF NOT EXISTS bhavcopy_rows (
	symbol TEXT NOT NULL,
	business_timestamp INTEGER NOT NULL,
	series TEXT NOT NULL,
	open_price REAL NOT NULL,
	high_price REAL NOT NULL,
	low_price REAL NOT NULL,
	close_price REAL NOT NULL,
	previous_close_price REAL NOT NULL,
	total_traded_quantity INTEGER NOT NULL,
	total_traded_value REAL NOT NULL,
	PRIMARY KEY (symbol, business_timestamp)
);
`

const insertMarketQuery = `INSERT INTO market_snapshots (
	security_token, timestamp, last_traded_price, best_buy_quantity, best_buy_price,
	best_sell_quantity, best_sell_price, total_traded_quantity, average_traded_price,
	open_price, high_price, low_price, close_price,
	interval_open_price, interval_high_price, interval_low_price, interval_close_price,
	interval_total_traded_quantity, indicative_close_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertIndexQuery = `INSERT INTO index_snapshots (
	index_token, timestamp, open_index_value, current_index_value, high_index_value,
	low_index_value, percentage_change, interval_open_index_value, interval_high_index_value,
	interval_low_index_value, interval_close_index_value, indicative_close_index_value
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertCallAuctionQuery = `INSERT INTO call_auction_snapshots (
	security_token, timestamp, last_traded_price, best_buy_quantity, best_buy_price,
	buy_bbmm_flag, best_sell_quantity, best_sell_price, sell_bbmm_flag,
	total_traded_quantity, indicative_traded_quantity, average_traded_price,
	first_open_price, open_price, high_price, low_price, close_price
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertSecuritiesQuery = `INSERT INTO securities (
	token_number, symbol, series, issued_capital, settlement_cycle, company_name,
	permitted_to_trade, last_updated
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(token_number) DO UPDATE SET
	symbol=excluded.symbol,
	series=excluded.series,
	issued_capital=excluded.issued_capital,
	settlement_cycle=excluded.settlement_cycle,
	company_name=excluded.company_name,
	permitted_to_trade=excluded.permitted_to_trade,
	last_updated=excluded.last_updated`

const insertBhavcopyQuery = `INSERT OR IGNORE INTO bhavcopy_rows (
	symbol, business_timestamp, series, open_price, high_price, low_price, close_price,
	previous_close_price, total_traded_quantity, total_traded_value
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertMarketBatch persists MarketSnapshot records in batches of
// batchSize, each batch wrapped in its own transaction.
func (s *Store) InsertMarketBatch(ctx context.Context, records []nsefeed.MarketSnapshot) error {
	return s.inBatches(ctx, len(records), func(tx *sql.Tx, lo, hi int) error {
		stmt := tx.StmtContext(ctx, s.stmtMarket)
		for _, r := range records[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				r.SecurityToken, r.Header.Timestamp, r.LastTradedPrice, r.BestBuyQuantity, r.BestBuyPrice,
				r.BestSellQuantity, r.BestSellPrice, r.TotalTradedQuantity, r.AverageTradedPrice,
				r.OpenPrice, r.HighPrice, r.LowPrice, r.ClosePrice,
				r.IntervalOpenPrice, r.IntervalHighPrice, r.IntervalLowPrice, r.IntervalClosePrice,
				r.IntervalTotalTradedQuantity, r.IndicativeClosePrice,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertIndexBatch persists IndexSnapshot records in batches of batchSize.
func (s *Store) InsertIndexBatch(ctx context.Context, records []nsefeed.IndexSnapshot) error {
	return s.inBatches(ctx, len(records), func(tx *sql.Tx, lo, hi int) error {
		stmt := tx.StmtContext(ctx, s.stmtIndex)
		for _, r := range records[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				r.IndexToken, r.Header.Timestamp, r.OpenIndexValue, r.CurrentIndexValue,
				r.HighIndexValue, r.LowIndexValue, r.PercentageChange,
				r.IntervalOpenIndexValue, r.IntervalHighIndexValue, r.IntervalLowIndexValue,
				r.IntervalCloseIndexValue, r.IndicativeCloseIndexValue,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertCallAuctionBatch persists CallAuctionSnapshot records in batches
// of batchSize.
func (s *Store) InsertCallAuctionBatch(ctx context.Context, records []nsefeed.CallAuctionSnapshot) error {
	return s.inBatches(ctx, len(records), func(tx *sql.Tx, lo, hi int) error {
		stmt := tx.StmtContext(ctx, s.stmtCallAuction)
		for _, r := range records[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				r.SecurityToken, r.Header.Timestamp, r.LastTradedPrice, r.BestBuyQuantity, r.BestBuyPrice,
				r.BuyBBMMFlag, r.BestSellQuantity, r.BestSellPrice, r.SellBBMMFlag,
				r.TotalTradedQuantity, r.IndicativeTradedQuantity, r.AverageTradedPrice,
				r.FirstOpenPrice, r.OpenPrice, r.HighPrice, r.LowPrice, r.ClosePrice,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// inBatches runs fn over [0,n) in chunks of batchSize, each inside its own
// transaction; a failed chunk rolls back and returns a PersistenceError.
func (s *Store) inBatches(ctx context.Context, n int, fn func(tx *sql.Tx, lo, hi int) error) error {
	for lo := 0; lo < n; lo += batchSize {
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.inBatches", err)
		}
		if err := fn(tx, lo, hi); err != nil {
			_ = tx.Rollback()
			return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.inBatches", err)
		}
		if err := tx.Commit(); err != nil {
			return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.inBatches", err)
		}
	}
	return nil
}

// UpsertSecurities writes each SecurityMaster row, inserting new tokens
// and overwriting existing ones keyed by token_number.
func (s *Store) UpsertSecurities(ctx context.Context, records []nsefeed.SecurityMaster, asOf time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.UpsertSecurities", err)
	}
	stmt := tx.StmtContext(ctx, s.stmtSecurities)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.TokenNumber, r.Symbol, r.Series, r.IssuedCapital, uint16(r.SettlementCycle),
			r.CompanyName, uint16(r.PermittedToTrade), asOf.Unix(),
		); err != nil {
			_ = tx.Rollback()
			return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.UpsertSecurities", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Store.UpsertSecurities", err)
	}
	return nil
}

// InsertBhavcopyConditional inserts bhavcopy rows for businessDate,
// ignoring any row whose (symbol, business_timestamp) already exists.
func (s *Store) InsertBhavcopyConditional(ctx context.Context, rows []nsefeed.BhavcopyRow, businessDate time.Time) error {
	return s.inBatches(ctx, len(rows), func(tx *sql.Tx, lo, hi int) error {
		stmt := tx.StmtContext(ctx, s.stmtBhavcopy)
		for _, r := range rows[lo:hi] {
			if _, err := stmt.ExecContext(ctx,
				r.Symbol, businessDate.Unix(), r.Series, r.OpeningPrice, r.TradeHighPrice,
				r.TradeLowPrice, r.ClosingPrice, r.PreviousClosePrice, r.TotalTradedQuantity,
				r.TotalTradedValue,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
