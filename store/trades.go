// Package store 将检出的成交落盘到 sqlite，供盘后分析与仪表盘回看。
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"quoter-go/exchange"
	"quoter-go/order"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	order_id   TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	ts         TEXT NOT NULL,
	side       TEXT NOT NULL,
	price      TEXT NOT NULL,
	quantity   TEXT NOT NULL,
	realized   REAL NOT NULL,
	PRIMARY KEY (order_id, seq)
);
`

// TradeStore sqlite 成交存储。(order_id, seq) 为主键，
// 重复写入同一成交是空操作，与成交侦测的幂等语义一致。
type TradeStore struct {
	db *sql.DB
}

// Open 打开（必要时建表）成交库。
func Open(path string) (*TradeStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trades db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init trades schema: %w", err)
	}
	return &TradeStore{db: db}, nil
}

// SaveFill 落盘一笔成交及其已实现盈亏增量。
func (s *TradeStore) SaveFill(f order.Fill, realized float64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO trades (order_id, seq, ts, side, price, quantity, realized)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Seq, f.DetectedAt.UTC().Format(time.RFC3339Nano),
		string(f.Side), f.Price.String(), f.Quantity.String(), realized,
	)
	if err != nil {
		return fmt.Errorf("save fill %s/%d: %w", f.OrderID, f.Seq, err)
	}
	return nil
}

// Trade 读取视图。
type Trade struct {
	OrderID  string
	Seq      int
	Ts       time.Time
	Side     exchange.Side
	Price    string
	Quantity string
	Realized float64
}

// Recent 返回最近 limit 笔成交，新的在前。
func (s *TradeStore) Recent(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT order_id, seq, ts, side, price, quantity, realized
		 FROM trades ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var tr Trade
		var ts, side string
		if err := rows.Scan(&tr.OrderID, &tr.Seq, &ts, &side, &tr.Price, &tr.Quantity, &tr.Realized); err != nil {
			return nil, err
		}
		tr.Side = exchange.Side(side)
		tr.Ts, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// RealizedTotal 返回落盘成交的已实现盈亏合计。
func (s *TradeStore) RealizedTotal() (float64, error) {
	var total sql.NullFloat64
	if err := s.db.QueryRow(`SELECT SUM(realized) FROM trades`).Scan(&total); err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// Close 关闭底层连接。
func (s *TradeStore) Close() error { return s.db.Close() }
