package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/query"
)

// Upsert inserts c if its natural key is new, or overwrites its
// OHLCV/indicator/signal fields in place if it already exists.
func (s *Store) Upsert(ctx context.Context, c *model.CandleRecord) (bool, error) {
	existed, err := s.Exists(ctx, c.Symbol, c.Timeframe, c.BarOpenTime)
	if err != nil {
		return false, err
	}

	signalsJSON, err := json.Marshal(c.Signals)
	if err != nil {
		return false, &apperr.InternalError{Op: "sqlite.Upsert", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &apperr.StoreError{Op: "sqlite.Upsert", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO candles (
			symbol, timeframe, bar_open_time, open, high, low, close, volume,
			ma_5, ma_10, ma_20, ma_50, rsi,
			macd_line, macd_signal, macd_histogram,
			stoch_k, stoch_d, skdj_k, skdj_d,
			bb_upper, bb_middle, bb_lower, cci,
			kdj_k, kdj_d, kdj_j,
			signals, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?, ?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?)
		ON CONFLICT (symbol, timeframe, bar_open_time) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume,
			ma_5=excluded.ma_5, ma_10=excluded.ma_10, ma_20=excluded.ma_20, ma_50=excluded.ma_50,
			rsi=excluded.rsi,
			macd_line=excluded.macd_line, macd_signal=excluded.macd_signal, macd_histogram=excluded.macd_histogram,
			stoch_k=excluded.stoch_k, stoch_d=excluded.stoch_d,
			skdj_k=excluded.skdj_k, skdj_d=excluded.skdj_d,
			bb_upper=excluded.bb_upper, bb_middle=excluded.bb_middle, bb_lower=excluded.bb_lower,
			cci=excluded.cci,
			kdj_k=excluded.kdj_k, kdj_d=excluded.kdj_d, kdj_j=excluded.kdj_j,
			signals=excluded.signals, updated_at=excluded.updated_at
	`,
		string(c.Symbol), string(c.Timeframe), c.BarOpenTime.UTC().Unix(),
		c.Open, c.High, c.Low, c.Close, c.Volume,
		nullable(c.MA.MA5), nullable(c.MA.MA10), nullable(c.MA.MA20), nullable(c.MA.MA50),
		nullable(c.RSI),
		nullable(c.MACD.Line), nullable(c.MACD.Signal), nullable(c.MACD.Histogram),
		nullable(c.Stochastic.K), nullable(c.Stochastic.D),
		nullable(c.SKDJ.K), nullable(c.SKDJ.D),
		nullable(c.Bollinger.Upper), nullable(c.Bollinger.Middle), nullable(c.Bollinger.Lower),
		nullable(c.CCI),
		nullable(c.KDJ.K), nullable(c.KDJ.D), nullable(c.KDJ.J),
		string(signalsJSON), c.CreatedAt.UTC().Unix(), c.UpdatedAt.UTC().Unix(),
	)
	if err != nil {
		return false, &apperr.StoreError{Op: "sqlite.Upsert", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM candle_signals WHERE symbol=? AND timeframe=? AND bar_open_time=?
	`, string(c.Symbol), string(c.Timeframe), c.BarOpenTime.UTC().Unix()); err != nil {
		return false, &apperr.StoreError{Op: "sqlite.Upsert", Err: err}
	}
	for _, sig := range c.Signals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO candle_signals (symbol, timeframe, bar_open_time, signal) VALUES (?,?,?,?)
		`, string(c.Symbol), string(c.Timeframe), c.BarOpenTime.UTC().Unix(), sig); err != nil {
			return false, &apperr.StoreError{Op: "sqlite.Upsert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &apperr.StoreError{Op: "sqlite.Upsert", Err: err}
	}
	return !existed, nil
}

// Exists reports whether the natural key is already stored.
func (s *Store) Exists(ctx context.Context, symbol model.Symbol, tf model.Timeframe, barOpenTime time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM candles WHERE symbol=? AND timeframe=? AND bar_open_time=?
	`, string(symbol), string(tf), barOpenTime.UTC().Unix()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &apperr.StoreError{Op: "sqlite.Exists", Err: err}
	}
	return true, nil
}

// Window returns the most recent n bars for (symbol, timeframe),
// oldest-first, for indicator/signal recomputation.
func (s *Store) Window(ctx context.Context, symbol model.Symbol, tf model.Timeframe, n int) ([]model.CandleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+candleColumns+` FROM candles
			WHERE symbol=? AND timeframe=?
			ORDER BY bar_open_time DESC
			LIMIT ?
		) ORDER BY bar_open_time ASC
	`, string(symbol), string(tf), n)
	if err != nil {
		return nil, &apperr.StoreError{Op: "sqlite.Window", Err: err}
	}
	defer rows.Close()
	return scanCandles(rows)
}

// Latest returns the single most recent bar for (symbol, timeframe).
func (s *Store) Latest(ctx context.Context, symbol model.Symbol, tf model.Timeframe) (*model.CandleRecord, error) {
	window, err := s.Window(ctx, symbol, tf, 1)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, nil
	}
	return &window[0], nil
}

// Query executes req: for each requested timeframe independently,
// load that timeframe's rows, apply the predicate plus an implicit
// symbol/timeframe match, sort, and cap by limit, then concatenate.
func (s *Store) Query(ctx context.Context, req model.QueryRequest) (model.QueryResult, error) {
	start := time.Now()
	if !req.Symbol.Valid() {
		return model.QueryResult{}, &apperr.ValidationError{Field: "symbol", Message: "invalid symbol"}
	}
	if req.Conditions != nil {
		if err := query.Validate(req.Conditions); err != nil {
			return model.QueryResult{}, err
		}
	}

	var (
		data  []model.CandleRecord
		total int
	)
	for _, tf := range req.Timeframes {
		if !tf.Valid() {
			return model.QueryResult{}, &apperr.ValidationError{Field: "timeframe", Message: "invalid timeframe"}
		}
		var tfTotal int
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM candles WHERE symbol=? AND timeframe=?
		`, string(req.Symbol), string(tf)).Scan(&tfTotal); err != nil {
			return model.QueryResult{}, &apperr.StoreError{Op: "sqlite.Query", Err: err}
		}

		all, err := s.loadForQuery(ctx, req.Symbol, tf, req.Conditions)
		if err != nil {
			return model.QueryResult{}, err
		}

		matched, _, err := query.ExecuteOverTimeframe(all, req, time.Now().UTC())
		if err != nil {
			return model.QueryResult{}, err
		}
		data = append(data, matched...)
		total += tfTotal
	}

	return model.QueryResult{
		MatchedRecords:  len(data),
		Data:            data,
		TotalRecords:    total,
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// loadForQuery fetches one timeframe's rows for predicate evaluation. When
// the predicate is a single signals-contains leaf, the row set is narrowed
// through the candle_signals member index instead of scanning every bar;
// the in-memory evaluator still re-checks the predicate on what comes back.
func (s *Store) loadForQuery(ctx context.Context, symbol model.Symbol, tf model.Timeframe, cond *model.Condition) ([]model.CandleRecord, error) {
	q := `SELECT ` + candleColumns + ` FROM candles WHERE symbol=? AND timeframe=?`
	args := []any{string(symbol), string(tf)}
	if tags := signalPushdown(cond); len(tags) > 0 {
		q += ` AND EXISTS (
			SELECT 1 FROM candle_signals cs
			WHERE cs.symbol = candles.symbol
			  AND cs.timeframe = candles.timeframe
			  AND cs.bar_open_time = candles.bar_open_time
			  AND cs.signal IN (` + placeholders(len(tags)) + `)
		)`
		for _, tag := range tags {
			args = append(args, tag)
		}
	}
	q += ` ORDER BY bar_open_time ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &apperr.StoreError{Op: "sqlite.loadForQuery", Err: err}
	}
	defer rows.Close()
	return scanCandles(rows)
}

// signalPushdown returns the tag list when cond is exactly a
// signals-contains leaf (single tag or a list of tags), the one shape the
// candle_signals table can answer. Any other tree evaluates in memory.
func signalPushdown(cond *model.Condition) []string {
	if cond == nil || !cond.IsLeaf() || cond.Field != model.FieldSignals || cond.Operator != model.OpContains {
		return nil
	}
	if cond.Value.Kind == model.ValueList {
		tags := make([]string, 0, len(cond.Value.List))
		for _, item := range cond.Value.List {
			if item.Kind != model.ValueString || item.Str == "" {
				return nil
			}
			tags = append(tags, item.Str)
		}
		return tags
	}
	if cond.Value.Kind == model.ValueString && cond.Value.Str != "" {
		return []string{cond.Value.Str}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// FieldStats computes the historical-statistics helper for one field
// over n recent bars of each requested timeframe.
func (s *Store) FieldStats(ctx context.Context, symbol model.Symbol, timeframes []model.Timeframe, field model.Field, n int) ([]model.FieldStats, error) {
	if !field.Valid() {
		return nil, &apperr.ValidationError{Field: "field", Message: "unknown field"}
	}
	out := make([]model.FieldStats, 0, len(timeframes))
	for _, tf := range timeframes {
		window, err := s.Window(ctx, symbol, tf, n)
		if err != nil {
			return nil, err
		}
		out = append(out, query.ComputeFieldStats(window, field, tf))
	}
	return out, nil
}

// RunRetention deletes 5m/15m bars older than 30 days relative to now.
func (s *Store) RunRetention(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -30).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM candles WHERE timeframe IN (?, ?) AND bar_open_time < ?
	`, string(model.TF5m), string(model.TF15m), cutoff)
	if err != nil {
		return 0, &apperr.StoreError{Op: "sqlite.RunRetention", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM candle_signals WHERE timeframe IN (?, ?) AND bar_open_time < ?
	`, string(model.TF5m), string(model.TF15m), cutoff); err != nil {
		return 0, &apperr.StoreError{Op: "sqlite.RunRetention", Err: err}
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

const candleColumns = `
	symbol, timeframe, bar_open_time, open, high, low, close, volume,
	ma_5, ma_10, ma_20, ma_50, rsi,
	macd_line, macd_signal, macd_histogram,
	stoch_k, stoch_d, skdj_k, skdj_d,
	bb_upper, bb_middle, bb_lower, cci,
	kdj_k, kdj_d, kdj_j,
	signals, created_at, updated_at
`

func scanCandles(rows *sql.Rows) ([]model.CandleRecord, error) {
	var out []model.CandleRecord
	for rows.Next() {
		var (
			c                                                        model.CandleRecord
			symbol, timeframe                                        string
			barOpenTime, createdAt, updatedAt                        int64
			ma5, ma10, ma20, ma50, rsi                                sql.NullFloat64
			macdLine, macdSignal, macdHist                            sql.NullFloat64
			stochK, stochD, skdjK, skdjD                              sql.NullFloat64
			bbUpper, bbMiddle, bbLower, cci                           sql.NullFloat64
			kdjK, kdjD, kdjJ                                          sql.NullFloat64
			signalsJSON                                               string
		)
		if err := rows.Scan(
			&symbol, &timeframe, &barOpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
			&ma5, &ma10, &ma20, &ma50, &rsi,
			&macdLine, &macdSignal, &macdHist,
			&stochK, &stochD, &skdjK, &skdjD,
			&bbUpper, &bbMiddle, &bbLower, &cci,
			&kdjK, &kdjD, &kdjJ,
			&signalsJSON, &createdAt, &updatedAt,
		); err != nil {
			return nil, &apperr.StoreError{Op: "sqlite.scanCandles", Err: err}
		}

		c.Symbol = model.Symbol(symbol)
		c.Timeframe = model.Timeframe(timeframe)
		c.BarOpenTime = time.Unix(barOpenTime, 0).UTC()
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		c.MA.MA5 = fromNullable(ma5)
		c.MA.MA10 = fromNullable(ma10)
		c.MA.MA20 = fromNullable(ma20)
		c.MA.MA50 = fromNullable(ma50)
		c.RSI = fromNullable(rsi)
		c.MACD.Line = fromNullable(macdLine)
		c.MACD.Signal = fromNullable(macdSignal)
		c.MACD.Histogram = fromNullable(macdHist)
		c.Stochastic.K = fromNullable(stochK)
		c.Stochastic.D = fromNullable(stochD)
		c.SKDJ.K = fromNullable(skdjK)
		c.SKDJ.D = fromNullable(skdjD)
		c.Bollinger.Upper = fromNullable(bbUpper)
		c.Bollinger.Middle = fromNullable(bbMiddle)
		c.Bollinger.Lower = fromNullable(bbLower)
		c.CCI = fromNullable(cci)
		c.KDJ.K = fromNullable(kdjK)
		c.KDJ.D = fromNullable(kdjD)
		c.KDJ.J = fromNullable(kdjJ)

		_ = json.Unmarshal([]byte(signalsJSON), &c.Signals)

		out = append(out, c)
	}
	return out, rows.Err()
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullable(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
