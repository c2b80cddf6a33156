package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PostgresStore is the Store implementation backing the dispatch plane
// and fleet state components. It goes through database/sql over the
// pgx stdlib driver rather than a native pgxpool handle, so the same
// *sql.DB can be exercised by go-sqlmock in tests. No SQL migrations
// or trigger definitions ship with this package; the schema and its
// triggers are assumed to exist. The ordinal-allocation trigger is reproduced
// here under an explicit row lock (see AssignDevice) so the invariant
// is visible in Go rather than hidden in a trigger body.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pool against dsn and verifies connectivity.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already-open *sql.DB, used by tests
// to hand the store a go-sqlmock connection.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Close() { s.db.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ── Hosts ───────────────────────────────────────────────────────────

func (s *PostgresStore) CreateHost(ctx context.Context, h Host) (Host, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO hosts (number, address, label, location, max_devices, status, last_heartbeat)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		RETURNING id, number, address, label, location, max_devices, status, last_heartbeat`,
		h.Number, h.Address, h.Label, h.Location, h.MaxDevices, nonEmpty(h.Status, HostOffline))
	return scanHost(row)
}

func (s *PostgresStore) GetHost(ctx context.Context, id string) (Host, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, number, address, label, location, max_devices, status, last_heartbeat FROM hosts WHERE id=$1`, id)
	return scanHost(row)
}

func (s *PostgresStore) GetHostByNumber(ctx context.Context, number string) (Host, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, number, address, label, location, max_devices, status, last_heartbeat FROM hosts WHERE number=$1`, number)
	return scanHost(row)
}

func (s *PostgresStore) ListHosts(ctx context.Context, f HostFilter) ([]Host, error) {
	limit, offset := pageBounds(f.Page, f.PageSize)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, address, label, location, max_devices, status, last_heartbeat
		FROM hosts
		WHERE ($1 = '' OR status = $1)
		ORDER BY number
		LIMIT $2 OFFSET $3`, string(f.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateHost(ctx context.Context, id string, patch map[string]any) (Host, error) {
	set, args := buildSet(patch, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE hosts SET %s WHERE id=$1
		RETURNING id, number, address, label, location, max_devices, status, last_heartbeat`, set),
		append([]any{id}, args...)...)
	return scanHost(row)
}

func (s *PostgresStore) DeleteHost(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hosts WHERE id=$1`, id)
	return err
}

// Heartbeat upserts last_heartbeat/status. Two calls with the same
// host number are idempotent modulo the timestamp (testable property,
// spec.md §8).
func (s *PostgresStore) Heartbeat(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE hosts SET last_heartbeat = now(), status = $2 WHERE number = $1`,
		number, HostOnline)
	return err
}

func (s *PostgresStore) HostSummaries(ctx context.Context) ([]HostSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.number,
		       count(d.id),
		       count(d.id) FILTER (WHERE d.status = 'online'),
		       count(d.id) FILTER (WHERE d.status = 'busy')
		FROM hosts h
		LEFT JOIN devices d ON d.host_id = h.id
		GROUP BY h.id, h.number
		ORDER BY h.number`)
	if err != nil {
		return nil, fmt.Errorf("host summaries: %w", err)
	}
	defer rows.Close()

	var out []HostSummary
	for rows.Next() {
		var hs HostSummary
		if err := rows.Scan(&hs.HostID, &hs.Number, &hs.DeviceCount, &hs.OnlineCount, &hs.BusyCount); err != nil {
			return nil, err
		}
		out = append(out, hs)
	}
	return out, rows.Err()
}

// ── Devices ─────────────────────────────────────────────────────────

func (s *PostgresStore) CreateDevice(ctx context.Context, d Device) (Device, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO devices (host_id, serial, address, automation_port, model, os_version,
		                      connection_type, physical_port, status, battery_level, code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, host_id, serial, address, automation_port, model, os_version,
		          connection_type, physical_port, device_number, code, status, battery_level,
		          error_count, last_error, last_seen`,
		d.HostID, d.Serial, d.Address, d.AutomationPort, d.Model, d.OSVersion,
		d.Connection, d.PhysicalPort, nonEmpty(d.Status, DeviceOffline), d.BatteryLevel, d.Code)
	return scanDevice(row)
}

func (s *PostgresStore) GetDevice(ctx context.Context, id string) (Device, error) {
	return s.getDeviceBy(ctx, "id", id)
}

func (s *PostgresStore) GetDeviceByCode(ctx context.Context, code string) (Device, error) {
	return s.getDeviceBy(ctx, "code", code)
}

func (s *PostgresStore) GetDeviceBySerial(ctx context.Context, serial string) (Device, error) {
	return s.getDeviceBy(ctx, "serial", serial)
}

func (s *PostgresStore) GetDeviceByIP(ctx context.Context, ip string) (Device, error) {
	return s.getDeviceBy(ctx, "address", ip)
}

func (s *PostgresStore) getDeviceBy(ctx context.Context, col, val string) (Device, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, host_id, serial, address, automation_port, model, os_version,
		       connection_type, physical_port, device_number, code, status, battery_level,
		       error_count, last_error, last_seen
		FROM devices WHERE %s = $1`, col), val)
	return scanDevice(row)
}

func (s *PostgresStore) ListDevices(ctx context.Context, f DeviceFilter) ([]Device, error) {
	limit, offset := pageBounds(f.Page, f.PageSize)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host_id, serial, address, automation_port, model, os_version,
		       connection_type, physical_port, device_number, code, status, battery_level,
		       error_count, last_error, last_seen
		FROM devices
		WHERE ($1 = '' OR host_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR connection_type = $3)
		  AND ($4 = false OR host_id IS NULL)
		ORDER BY code
		LIMIT $5 OFFSET $6`,
		f.HostID, string(f.Status), string(f.Connection), f.UnassignedOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDevice(ctx context.Context, id string, patch map[string]any) (Device, error) {
	set, args := buildSet(patch, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE devices SET %s WHERE id=$1
		RETURNING id, host_id, serial, address, automation_port, model, os_version,
		          connection_type, physical_port, device_number, code, status, battery_level,
		          error_count, last_error, last_seen`, set),
		append([]any{id}, args...)...)
	return scanDevice(row)
}

func (s *PostgresStore) DeleteDevice(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id=$1`, id)
	return err
}

// AssignDevice allocates the next free host-local ordinal under a row
// lock on the owning host, reproducing the trigger-driven invariant
// from spec.md §4.J as an explicit, atomic Go-visible transaction.
func (s *PostgresStore) AssignDevice(ctx context.Context, deviceID, hostID string) (Device, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Device{}, fmt.Errorf("begin assign: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM hosts WHERE id=$1 FOR UPDATE`, hostID); err != nil {
		return Device{}, fmt.Errorf("lock host: %w", err)
	}

	var ordinal int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(device_number), 0) + 1 FROM devices WHERE host_id = $1`, hostID).Scan(&ordinal); err != nil {
		return Device{}, fmt.Errorf("next ordinal: %w", err)
	}

	var number string
	if err := tx.QueryRowContext(ctx, `SELECT number FROM hosts WHERE id=$1`, hostID).Scan(&number); err != nil {
		return Device{}, fmt.Errorf("host number: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE devices SET host_id=$2, device_number=$3, code=$4
		WHERE id=$1
		RETURNING id, host_id, serial, address, automation_port, model, os_version,
		          connection_type, physical_port, device_number, code, status, battery_level,
		          error_count, last_error, last_seen`,
		deviceID, hostID, ordinal, fmt.Sprintf("%s-%03d", number, ordinal))
	d, err := scanDevice(row)
	if err != nil {
		return Device{}, err
	}
	return d, tx.Commit()
}

// UnassignDevice clears both host_id and device_number. The ordinal is
// a property of the assignment, not of the device (SPEC_FULL.md §9).
func (s *PostgresStore) UnassignDevice(ctx context.Context, deviceID string) (Device, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE devices SET host_id=NULL, device_number=NULL WHERE id=$1
		RETURNING id, host_id, serial, address, automation_port, model, os_version,
		          connection_type, physical_port, device_number, code, status, battery_level,
		          error_count, last_error, last_seen`, deviceID)
	return scanDevice(row)
}

func (s *PostgresStore) OnlineDevices(ctx context.Context) ([]Device, error) {
	return s.ListDevices(ctx, DeviceFilter{Status: DeviceOnline, PageSize: 10000})
}

// ── Tasks ───────────────────────────────────────────────────────────

func (s *PostgresStore) CreateTask(ctx context.Context, t Task) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (broker_id, kind, queue, device_id, host_id, payload, status, progress, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0, now())
		RETURNING id, broker_id, kind, queue, device_id, host_id, payload, result, error, retries,
		          progress, progress_message, status, created_at, started_at, completed_at`,
		t.BrokerID, t.Kind, t.Queue, t.DeviceID, t.HostID, t.Payload, nonEmpty(t.Status, TaskPending))
	return scanTask(row)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (Task, error) {
	return s.getTaskBy(ctx, "id", id)
}

func (s *PostgresStore) GetTaskByBrokerID(ctx context.Context, brokerID string) (Task, error) {
	return s.getTaskBy(ctx, "broker_id", brokerID)
}

func (s *PostgresStore) getTaskBy(ctx context.Context, col, val string) (Task, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, broker_id, kind, queue, device_id, host_id, payload, result, error, retries,
		       progress, progress_message, status, created_at, started_at, completed_at
		FROM tasks WHERE %s = $1`, col), val)
	return scanTask(row)
}

func (s *PostgresStore) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	limit, offset := pageBounds(f.Page, f.PageSize)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, broker_id, kind, queue, device_id, host_id, payload, result, error, retries,
		       progress, progress_message, status, created_at, started_at, completed_at
		FROM tasks
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR kind = $2)
		  AND ($3 = '' OR device_id = $3)
		  AND ($4 = '' OR host_id = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		string(f.Status), f.Kind, f.DeviceID, f.HostID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus applies the started_at/completed_at transitions
// from spec.md §3: started_at is set on first running, completed_at on
// any terminal state.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, patch map[string]any) (Task, error) {
	full := map[string]any{"status": string(status)}
	for k, v := range patch {
		full[k] = v
	}
	if status == TaskRunning {
		full["started_at"] = sqlCoalesceNow{}
	}
	if status.Terminal() {
		full["completed_at"] = time.Now()
	}

	set, args := buildSet(full, 2)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE tasks SET %s WHERE id=$1
		RETURNING id, broker_id, kind, queue, device_id, host_id, payload, result, error, retries,
		          progress, progress_message, status, created_at, started_at, completed_at`, set),
		append([]any{id}, args...)...)
	return scanTask(row)
}

// IncrementTaskRetry performs one atomic UPDATE ... SET retries =
// retries + 1, resolving the Open Question in spec.md §9 about the
// increment RPC's atomicity.
func (s *PostgresStore) IncrementTaskRetry(ctx context.Context, id string) (int, error) {
	var retries int
	err := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET retries = retries + 1, status = $2 WHERE id = $1
		RETURNING retries`, id, TaskRetrying).Scan(&retries)
	if err != nil {
		return 0, fmt.Errorf("increment task retry: %w", err)
	}
	return retries, nil
}

func (s *PostgresStore) RecentTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.ListTasks(ctx, TaskFilter{PageSize: limit, Page: 1})
}

func (s *PostgresStore) TaskStatistics(ctx context.Context) (TaskStats, error) {
	var st TaskStats
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status='pending'),
		       count(*) FILTER (WHERE status='running'),
		       count(*) FILTER (WHERE status='success'),
		       count(*) FILTER (WHERE status='failed'),
		       count(*) FILTER (WHERE status='retrying'),
		       count(*) FILTER (WHERE status='cancelled')
		FROM tasks`).Scan(&st.Total, &st.Pending, &st.Running, &st.Success, &st.Failed, &st.Retrying, &st.Cancelled)
	if err != nil {
		return TaskStats{}, fmt.Errorf("task statistics: %w", err)
	}
	return st, nil
}

// ── scanning & small helpers ────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHost(row rowScanner) (Host, error) {
	var h Host
	err := row.Scan(&h.ID, &h.Number, &h.Address, &h.Label, &h.Location, &h.MaxDevices, &h.Status, &h.LastHeartbeat)
	if err != nil {
		return Host{}, wrapScanErr("host", err)
	}
	return h, nil
}

func scanDevice(row rowScanner) (Device, error) {
	var d Device
	var hostID *string
	var deviceNumber *int
	err := row.Scan(&d.ID, &hostID, &d.Serial, &d.Address, &d.AutomationPort, &d.Model, &d.OSVersion,
		&d.Connection, &d.PhysicalPort, &deviceNumber, &d.Code, &d.Status, &d.BatteryLevel,
		&d.ErrorCount, &d.LastError, &d.LastSeen)
	if err != nil {
		return Device{}, wrapScanErr("device", err)
	}
	d.HostID = hostID
	if deviceNumber != nil {
		d.DeviceNumber = *deviceNumber
	}
	return d, nil
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var deviceID, hostID *string
	err := row.Scan(&t.ID, &t.BrokerID, &t.Kind, &t.Queue, &deviceID, &hostID, &t.Payload, &t.Result,
		&t.Error, &t.Retries, &t.Progress, &t.ProgressMessage, &t.Status, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return Task{}, wrapScanErr("task", err)
	}
	t.DeviceID, t.HostID = deviceID, hostID
	return t, nil
}

func wrapScanErr(entity string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("scan %s: %w", entity, err)
}

func pageBounds(page, size int) (limit, offset int) {
	if size <= 0 {
		size = 50
	}
	if page <= 0 {
		page = 1
	}
	return size, (page - 1) * size
}

// buildSet renders a SQL SET clause from a patch map, starting
// placeholders at startAt (since $1 is usually the WHERE key).
func buildSet(patch map[string]any, startAt int) (string, []any) {
	set := ""
	args := make([]any, 0, len(patch))
	i := startAt
	for col, val := range patch {
		if set != "" {
			set += ", "
		}
		if _, ok := val.(sqlCoalesceNow); ok {
			set += fmt.Sprintf("%s = COALESCE(%s, now())", col, col)
			continue
		}
		set += fmt.Sprintf("%s = $%d", col, i)
		args = append(args, val)
		i++
	}
	return set, args
}

// sqlCoalesceNow marks a column that should only be set if currently
// null (started_at's "set on first running" rule).
type sqlCoalesceNow struct{}

func nonEmpty[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
