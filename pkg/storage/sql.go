package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string

	// seq orders rows inserted within the same timestamp.
	seq string

	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool

	encodeTime func(time.Time) any

	// bucket truncates ts to the start of its UTC interval.
	bucket func(model.Interval) string
}

var sqliteDialect = dialect{
	name:       "sqlite",
	seq:        "rowid",
	encodeTime: func(t time.Time) any { return t.UTC().UnixNano() },
	bucket: func(i model.Interval) string {
		width := i.Duration().Nanoseconds()
		return fmt.Sprintf("(ts / %d) * %d", width, width)
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	seq:        "seq",
	numbered:   true,
	encodeTime: func(t time.Time) any { return t.UTC() },
	bucket: func(i model.Interval) string {
		return fmt.Sprintf("date_trunc('%s', ts AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'", i)
	},
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeValue scans either unix nanoseconds or a native timestamp.
type timeValue struct{ t *time.Time }

func (v timeValue) Scan(src any) error {
	switch s := src.(type) {
	case int64:
		*v.t = time.Unix(0, s).UTC()
	case time.Time:
		*v.t = s.UTC()
	case nil:
		*v.t = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp value %T", src)
	}
	return nil
}

// sqlStore implements Storage on top of database/sql.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(query), args...)
}

func (s *sqlStore) AppendReading(ctx context.Context, reading *model.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	_, err := s.exec(ctx,
		`INSERT INTO readings (id, user_id, device_id, ts, consumption_kwh, voltage_v, current_a)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.UserID, reading.DeviceID, s.d.encodeTime(reading.Timestamp),
		reading.ConsumptionKWh, reading.Voltage, reading.Current,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *sqlStore) SumConsumption(ctx context.Context, userID, deviceID string, start, end time.Time) (model.WindowSum, error) {
	query := `SELECT COALESCE(SUM(consumption_kwh), 0), COUNT(*) FROM readings WHERE user_id = ? AND ts >= ? AND ts < ?`
	args := []any{userID, s.d.encodeTime(start), s.d.encodeTime(end)}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}

	var sum model.WindowSum
	if err := s.queryRow(ctx, query, args...).Scan(&sum.Sum, &sum.Count); err != nil {
		return model.WindowSum{}, fmt.Errorf("sum consumption: %w", err)
	}
	return sum, nil
}

const readingColumns = "id, user_id, device_id, ts, consumption_kwh, voltage_v, current_a"

func (s *sqlStore) RecentReadings(ctx context.Context, userID, deviceID string, n int) ([]model.Reading, error) {
	query := "SELECT " + readingColumns + " FROM readings WHERE user_id = ?"
	args := []any{userID}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY ts DESC, " + s.d.seq + " DESC"
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}
	return s.queryReadings(ctx, query, args...)
}

func (s *sqlStore) ReadingsInRange(ctx context.Context, userID, deviceID string, start, end time.Time) ([]model.Reading, error) {
	query := "SELECT " + readingColumns + " FROM readings WHERE user_id = ? AND ts >= ? AND ts < ?"
	args := []any{userID, s.d.encodeTime(start), s.d.encodeTime(end)}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY ts ASC, " + s.d.seq + " ASC"
	return s.queryReadings(ctx, query, args...)
}

func (s *sqlStore) AggregateReadings(ctx context.Context, userID, deviceID string, interval model.Interval, limit int) ([]model.UsageBucket, error) {
	if limit <= 0 {
		limit = DefaultAggregateBuckets
	}
	if interval != model.IntervalDay {
		interval = model.IntervalHour
	}

	query := "SELECT " + s.d.bucket(interval) + ` AS bucket, SUM(consumption_kwh),
		AVG(NULLIF(voltage_v, 0)), AVG(NULLIF(current_a, 0)), COUNT(*)
		FROM readings WHERE user_id = ?`
	args := []any{userID}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " GROUP BY bucket ORDER BY bucket DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate readings: %w", err)
	}
	defer rows.Close()

	var buckets []model.UsageBucket
	for rows.Next() {
		var b model.UsageBucket
		var voltage, current sql.NullFloat64
		if err := rows.Scan(timeValue{&b.Start}, &b.TotalConsumption, &voltage, &current, &b.Count); err != nil {
			return nil, fmt.Errorf("scan usage bucket: %w", err)
		}
		if voltage.Valid {
			b.AvgVoltage = &voltage.Float64
		}
		if current.Valid {
			b.AvgCurrent = &current.Float64
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *sqlStore) queryReadings(ctx context.Context, query string, args ...any) ([]model.Reading, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.ID, &r.UserID, &r.DeviceID, timeValue{&r.Timestamp},
			&r.ConsumptionKWh, &r.Voltage, &r.Current); err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *sqlStore) DevicePairs(ctx context.Context) ([]model.DevicePair, error) {
	rows, err := s.query(ctx, "SELECT DISTINCT user_id, device_id FROM readings ORDER BY user_id, device_id")
	if err != nil {
		return nil, fmt.Errorf("list device pairs: %w", err)
	}
	defer rows.Close()

	var pairs []model.DevicePair
	for rows.Next() {
		var p model.DevicePair
		if err := rows.Scan(&p.UserID, &p.DeviceID); err != nil {
			return nil, fmt.Errorf("scan device pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

const thresholdColumns = "user_id, device_id, daily_limit, weekly_limit, monthly_limit, updated_at"

func (s *sqlStore) GetThreshold(ctx context.Context, userID, deviceID string) (*model.Threshold, error) {
	rows, err := s.query(ctx,
		"SELECT "+thresholdColumns+" FROM thresholds WHERE user_id = ? AND device_id = ? LIMIT 1",
		userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get threshold: %w", err)
	}
	defer rows.Close()

	thresholds, err := scanThresholds(rows)
	if err != nil {
		return nil, err
	}
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("threshold for device %q: %w", deviceID, model.ErrNotFound)
	}
	return &thresholds[0], nil
}

func (s *sqlStore) SetThreshold(ctx context.Context, threshold *model.Threshold) error {
	threshold.UpdatedAt = time.Now().UTC()

	_, err := s.exec(ctx,
		`INSERT INTO thresholds (user_id, device_id, daily_limit, weekly_limit, monthly_limit, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, device_id) DO UPDATE SET
		   daily_limit = excluded.daily_limit,
		   weekly_limit = excluded.weekly_limit,
		   monthly_limit = excluded.monthly_limit,
		   updated_at = excluded.updated_at`,
		threshold.UserID, threshold.DeviceID, threshold.DailyLimit,
		nullFloat(threshold.WeeklyLimit), nullFloat(threshold.MonthlyLimit),
		s.d.encodeTime(threshold.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}

func (s *sqlStore) ListThresholds(ctx context.Context, userID string) ([]model.Threshold, error) {
	rows, err := s.query(ctx,
		"SELECT "+thresholdColumns+" FROM thresholds WHERE user_id = ? ORDER BY device_id", userID)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()
	return scanThresholds(rows)
}

func scanThresholds(rows *sql.Rows) ([]model.Threshold, error) {
	var thresholds []model.Threshold
	for rows.Next() {
		var t model.Threshold
		var weekly, monthly sql.NullFloat64
		if err := rows.Scan(&t.UserID, &t.DeviceID, &t.DailyLimit, &weekly, &monthly,
			timeValue{&t.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan threshold row: %w", err)
		}
		if weekly.Valid {
			t.WeeklyLimit = &weekly.Float64
		}
		if monthly.Valid {
			t.MonthlyLimit = &monthly.Float64
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, rows.Err()
}

func (s *sqlStore) GetBudget(ctx context.Context, userID string) (float64, error) {
	var budget float64
	err := s.queryRow(ctx, "SELECT budget_kwh FROM budgets WHERE user_id = ?", userID).Scan(&budget)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get budget: %w", err)
	}
	return budget, nil
}

func (s *sqlStore) SetBudget(ctx context.Context, userID string, budget float64) error {
	_, err := s.exec(ctx,
		`INSERT INTO budgets (user_id, budget_kwh, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   budget_kwh = excluded.budget_kwh,
		   updated_at = excluded.updated_at`,
		userID, budget, s.d.encodeTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

const alertColumns = "id, user_id, device_id, reading_id, kind, message, limit_kwh, value_kwh, ts, is_read, status, delivered_to"

func (s *sqlStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Status == "" {
		alert.Status = model.DeliveryPending
	}
	deliveredTo, err := encodeNames(alert.DeliveredTo)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.UserID, alert.DeviceID, alert.ReadingID, string(alert.Kind), alert.Message,
		alert.Limit, alert.Value, s.d.encodeTime(alert.Timestamp), alert.Read, string(alert.Status),
		deliveredTo,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *sqlStore) GetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	rows, err := s.query(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", alertID)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, fmt.Errorf("alert %q: %w", alertID, model.ErrNotFound)
	}
	return &alerts[0], nil
}

func (s *sqlStore) ListAlerts(ctx context.Context, userID string, limit int) ([]model.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE user_id = ? ORDER BY ts DESC, " + s.d.seq + " DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *sqlStore) MarkRead(ctx context.Context, alertID string) error {
	result, err := s.exec(ctx, "UPDATE alerts SET is_read = ? WHERE id = ?", true, alertID)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return checkAffected(result, alertID)
}

func (s *sqlStore) SetAlertDelivery(ctx context.Context, alertID string, status model.DeliveryStatus, deliveredTo []string) error {
	names, err := encodeNames(deliveredTo)
	if err != nil {
		return err
	}
	result, err := s.exec(ctx, "UPDATE alerts SET status = ?, delivered_to = ? WHERE id = ?",
		string(status), names, alertID)
	if err != nil {
		return fmt.Errorf("set alert status: %w", err)
	}
	return checkAffected(result, alertID)
}

func (s *sqlStore) PendingAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE status <> ? ORDER BY ts ASC, " + s.d.seq + " ASC"
	args := []any{string(model.DeliverySent)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind, status, deliveredTo string
		if err := rows.Scan(&a.ID, &a.UserID, &a.DeviceID, &a.ReadingID, &kind, &a.Message,
			&a.Limit, &a.Value, timeValue{&a.Timestamp}, &a.Read, &status, &deliveredTo); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		if deliveredTo != "" && deliveredTo != "[]" {
			if err := json.Unmarshal([]byte(deliveredTo), &a.DeliveredTo); err != nil {
				return nil, fmt.Errorf("decode delivered notifiers: %w", err)
			}
		}
		a.Kind = model.AlertKind(kind)
		a.Status = model.DeliveryStatus(status)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const predictionColumns = "id, user_id, device_id, predicted_consumption, confidence, recommendations, peak_hours, anomalous, sample_size, ts"

func (s *sqlStore) SaveForecast(ctx context.Context, prediction *model.Prediction) error {
	if prediction.ID == "" {
		prediction.ID = uuid.New().String()
	}
	if prediction.Timestamp.IsZero() {
		prediction.Timestamp = time.Now().UTC()
	}

	recs := prediction.Recommendations
	if recs == nil {
		recs = []model.Recommendation{}
	}
	recJSON, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	hours := prediction.PeakHours
	if hours == nil {
		hours = []int{}
	}
	hoursJSON, err := json.Marshal(hours)
	if err != nil {
		return fmt.Errorf("marshal peak hours: %w", err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO predictions (`+predictionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prediction.ID, prediction.UserID, prediction.DeviceID,
		prediction.PredictedConsumption, prediction.Confidence,
		string(recJSON), string(hoursJSON), prediction.Anomalous, prediction.SampleSize,
		s.d.encodeTime(prediction.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *sqlStore) LatestForecasts(ctx context.Context, userID, deviceID string, limit int) ([]model.Prediction, error) {
	if limit <= 0 {
		limit = DefaultForecastLimit
	}

	query := "SELECT " + predictionColumns + " FROM predictions WHERE user_id = ?"
	args := []any{userID}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY ts DESC, " + s.d.seq + " DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	defer rows.Close()

	var predictions []model.Prediction
	for rows.Next() {
		var p model.Prediction
		var recJSON, hoursJSON string
		if err := rows.Scan(&p.ID, &p.UserID, &p.DeviceID, &p.PredictedConsumption, &p.Confidence,
			&recJSON, &hoursJSON, &p.Anomalous, &p.SampleSize, timeValue{&p.Timestamp}); err != nil {
			return nil, fmt.Errorf("scan prediction row: %w", err)
		}
		if err := json.Unmarshal([]byte(recJSON), &p.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
		if err := json.Unmarshal([]byte(hoursJSON), &p.PeakHours); err != nil {
			return nil, fmt.Errorf("decode peak hours: %w", err)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

func (s *sqlStore) PruneForecasts(ctx context.Context, userID, deviceID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.exec(ctx,
		`DELETE FROM predictions WHERE user_id = ? AND device_id = ? AND id NOT IN (
			SELECT id FROM predictions WHERE user_id = ? AND device_id = ?
			ORDER BY ts DESC, `+s.d.seq+` DESC LIMIT ?
		)`,
		userID, deviceID, userID, deviceID, keep,
	)
	if err != nil {
		return fmt.Errorf("prune forecasts: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func checkAffected(result sql.Result, alertID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q: %w", alertID, model.ErrNotFound)
	}
	return nil
}

func encodeNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("marshal notifier names: %w", err)
	}
	return string(b), nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
