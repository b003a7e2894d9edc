// Package sqlite implements the core store contracts on an embedded SQLite
// database, for single site deployments and local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS charger (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	ip_address TEXT,
	mqtt_port INTEGER DEFAULT 1883,
	mqtt_user TEXT,
	password TEXT,
	rest_api_port INTEGER DEFAULT 5555
);
CREATE TABLE IF NOT EXISTS charging_controller (
	id TEXT PRIMARY KEY,
	charging_point_id INTEGER,
	charging_point_name TEXT,
	parent_device_uid TEXT,
	position INTEGER,
	device_name TEXT,
	firmware_version TEXT,
	hardware_version TEXT,
	charger_id INTEGER NOT NULL REFERENCES charger(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS connection_status (
	charger_id INTEGER PRIMARY KEY REFERENCES charger(id) ON DELETE CASCADE,
	mqtt_status INTEGER NOT NULL,
	rest_api_status INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS last_known_state (
	controller_id TEXT PRIMARY KEY,
	state TEXT NOT NULL CHECK (state IN ('connected', 'disconnected'))
);
CREATE TABLE IF NOT EXISTS charging_session (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	controller_id TEXT NOT NULL REFERENCES charging_controller(id) ON DELETE CASCADE,
	start_timestamp TEXT NOT NULL,
	start_real_power REAL NOT NULL,
	rfid_tag TEXT,
	rfid_timestamp TEXT,
	end_timestamp TEXT,
	end_real_power REAL,
	consumption REAL,
	duration REAL
);
CREATE UNIQUE INDEX IF NOT EXISTS charging_session_one_open
	ON charging_session (controller_id) WHERE end_timestamp IS NULL;`

// Store persists monitor state in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// AddCharger inserts or replaces an inventory row.
func (s *Store) AddCharger(ctx context.Context, c model.Charger) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO charger (id, name, ip_address, mqtt_port, mqtt_user, password, rest_api_port)
        VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            ip_address = excluded.ip_address,
            mqtt_port = excluded.mqtt_port,
            mqtt_user = excluded.mqtt_user,
            password = excluded.password,
            rest_api_port = excluded.rest_api_port`,
		c.ID, c.Name, c.Address, c.MQTTPort, c.MQTTUser, c.MQTTPassword, c.TelemetryPort)
	return mapErr(err)
}

// RemoveCharger deletes an inventory row and everything referencing it.
func (s *Store) RemoveCharger(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM charger WHERE id = ?`, id)
	return err
}

func (s *Store) ListChargers(ctx context.Context) ([]model.Charger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, COALESCE(ip_address, ''), COALESCE(mqtt_port, 1883),
        COALESCE(rest_api_port, 5555), COALESCE(mqtt_user, ''), COALESCE(password, '')
        FROM charger ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Charger
	for rows.Next() {
		var c model.Charger
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.MQTTPort, &c.TelemetryPort, &c.MQTTUser, &c.MQTTPassword); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO connection_status (charger_id, mqtt_status, rest_api_status, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(charger_id) DO UPDATE SET
            mqtt_status = excluded.mqtt_status,
            rest_api_status = excluded.rest_api_status,
            updated_at = excluded.updated_at`,
		st.ChargerID, st.MQTTOK, st.TelemetryOK, formatTime(updated))
	return mapErr(err)
}

func (s *Store) GetLastState(ctx context.Context, controllerID string) (model.VehicleState, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM last_known_state WHERE controller_id = ?`, controllerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	st, err := model.ParseVehicleState(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", store.ErrInvalidState, err)
	}
	return st, true, nil
}

func (s *Store) SetLastState(ctx context.Context, controllerID string, state model.VehicleState) error {
	if err := store.ValidateState(state); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO last_known_state (controller_id, state) VALUES (?, ?)
        ON CONFLICT(controller_id) DO UPDATE SET state = excluded.state`, controllerID, string(state))
	return mapErr(err)
}

func (s *Store) UpsertController(ctx context.Context, c model.Controller) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO charging_controller (id, charging_point_id, charging_point_name,
            parent_device_uid, position, device_name, firmware_version, hardware_version, charger_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            charging_point_id = excluded.charging_point_id,
            charging_point_name = excluded.charging_point_name,
            parent_device_uid = excluded.parent_device_uid,
            position = excluded.position,
            device_name = excluded.device_name,
            firmware_version = excluded.firmware_version,
            hardware_version = excluded.hardware_version,
            charger_id = excluded.charger_id`,
		c.ID, c.ChargingPointID, c.ChargingPointName, c.ParentDeviceID, c.Position,
		c.DeviceName, c.FirmwareVersion, c.HardwareVersion, c.ChargerID)
	return mapErr(err)
}

func (s *Store) ControllerExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM charging_controller WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (s *Store) OpenSession(ctx context.Context, start model.SessionStart) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO charging_session (controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp)
        VALUES (?, ?, ?, ?, ?)`,
		start.ControllerID, formatTime(start.StartTime), start.StartReading, start.RFIDTag, formatTimePtr(start.RFIDTime))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (s *Store) FindOpenSession(ctx context.Context, controllerID string) (*model.ChargingSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp,
            end_timestamp, end_real_power, consumption, duration
        FROM charging_session WHERE controller_id = ? AND end_timestamp IS NULL
        ORDER BY start_timestamp DESC LIMIT 1`, controllerID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID int64, end model.SessionEnd) error {
	res, err := s.db.ExecContext(ctx, `UPDATE charging_session SET
            end_timestamp = ?, end_real_power = ?, consumption = ?, duration = ?,
            rfid_timestamp = CASE WHEN rfid_tag IS NULL THEN ? ELSE rfid_timestamp END,
            rfid_tag = COALESCE(rfid_tag, ?)
        WHERE id = ? AND end_timestamp IS NULL`,
		formatTime(end.EndTime), end.EndReading, end.Consumption, end.Duration.Seconds(),
		formatTimePtr(end.RFIDTime), end.RFIDTag, sessionID)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: open session %d", store.ErrNotFound, sessionID)
	}
	return nil
}

// Sessions returns every session of a controller, oldest first.
func (s *Store) Sessions(ctx context.Context, controllerID string) ([]model.ChargingSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp,
            end_timestamp, end_real_power, consumption, duration
        FROM charging_session WHERE controller_id = ? ORDER BY start_timestamp, id`, controllerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ChargingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (model.ChargingSession, error) {
	var (
		sess                      model.ChargingSession
		start                     string
		rfidTag, rfidTime, endTS  sql.NullString
		endReading, cons, seconds sql.NullFloat64
	)
	if err := r.Scan(&sess.ID, &sess.ControllerID, &start, &sess.StartReading, &rfidTag, &rfidTime,
		&endTS, &endReading, &cons, &seconds); err != nil {
		return sess, err
	}
	var err error
	if sess.StartTime, err = parseTime(start); err != nil {
		return sess, err
	}
	if rfidTag.Valid {
		tag := rfidTag.String
		sess.RFIDTag = &tag
	}
	if rfidTime.Valid {
		ts, err := parseTime(rfidTime.String)
		if err != nil {
			return sess, err
		}
		sess.RFIDTime = &ts
	}
	if endTS.Valid {
		ts, err := parseTime(endTS.String)
		if err != nil {
			return sess, err
		}
		sess.EndTime = &ts
	}
	if endReading.Valid {
		v := endReading.Float64
		sess.EndReading = &v
	}
	if cons.Valid {
		v := cons.Float64
		sess.Consumption = &v
	}
	if seconds.Valid {
		d := time.Duration(seconds.Float64 * float64(time.Second))
		sess.Duration = &d
	}
	return sess, nil
}

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

// sqliteConstraint is the primary result code of integrity violations.
const sqliteConstraint = 19

// mapErr turns integrity violations into store.ErrConstraint.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqliteConstraint {
		return fmt.Errorf("%w: %s", store.ErrConstraint, se.Error())
	}
	return err
}
