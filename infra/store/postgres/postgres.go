// Package postgres implements the core store contracts on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
)

// Config defines the PostgreSQL connection.
type Config struct {
	URL            string `json:"url"`
	MaxConns       int32  `json:"max_conns"`
	EnsureSchema   bool   `json:"ensure_schema"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`
}

// Store is a store.Store backed by a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Connect opens the pool, checks the server is reachable and optionally
// creates the schema.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pc.MaxConns = 10
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = 1
	pc.MaxConnIdleTime = 5 * time.Minute

	timeout := 10 * time.Second
	if cfg.ConnectTimeout > 0 {
		timeout = time.Duration(cfg.ConnectTimeout) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(cctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: pool}
	if cfg.EnsureSchema {
		if err := s.Migrate(cctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing pool.
func New(db *pgxpool.Pool) *Store { return &Store{db: db} }

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) ListChargers(ctx context.Context) ([]model.Charger, error) {
	rows, err := s.db.Query(ctx, `
		select id, name, coalesce(ip_address,''), coalesce(mqtt_port,1883), coalesce(rest_api_port,5555),
		       coalesce(mqtt_user,''), coalesce(password,'')
		from charger
		order by id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Charger
	for rows.Next() {
		var c model.Charger
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.MQTTPort, &c.TelemetryPort, &c.MQTTUser, &c.MQTTPassword); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		insert into connection_status (charger_id, mqtt_status, rest_api_status, updated_at)
		values ($1,$2,$3,$4)
		on conflict (charger_id) do update set
		  mqtt_status=excluded.mqtt_status,
		  rest_api_status=excluded.rest_api_status,
		  updated_at=excluded.updated_at
	`, st.ChargerID, st.MQTTOK, st.TelemetryOK, updated)
	return mapErr(err)
}

// ConnectionStatus returns the stored status of a charger, nil when absent.
func (s *Store) ConnectionStatus(ctx context.Context, chargerID int64) (*model.ConnectionStatus, error) {
	var st model.ConnectionStatus
	err := s.db.QueryRow(ctx, `
		select charger_id, mqtt_status, rest_api_status, updated_at
		from connection_status where charger_id=$1
	`, chargerID).Scan(&st.ChargerID, &st.MQTTOK, &st.TelemetryOK, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetLastState(ctx context.Context, controllerID string) (model.VehicleState, bool, error) {
	var raw string
	err := s.db.QueryRow(ctx, `select state from last_known_state where controller_id=$1`, controllerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
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
	_, err := s.db.Exec(ctx, `
		insert into last_known_state (controller_id, state)
		values ($1,$2)
		on conflict (controller_id) do update set state=excluded.state
	`, controllerID, string(state))
	return mapErr(err)
}

func (s *Store) UpsertController(ctx context.Context, c model.Controller) error {
	_, err := s.db.Exec(ctx, `
		insert into charging_controller (id, charging_point_id, charging_point_name, parent_device_uid, position,
		                                 device_name, firmware_version, hardware_version, charger_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do update set
		  charging_point_id=excluded.charging_point_id,
		  charging_point_name=excluded.charging_point_name,
		  parent_device_uid=excluded.parent_device_uid,
		  position=excluded.position,
		  device_name=excluded.device_name,
		  firmware_version=excluded.firmware_version,
		  hardware_version=excluded.hardware_version,
		  charger_id=excluded.charger_id
	`, c.ID, c.ChargingPointID, c.ChargingPointName, c.ParentDeviceID, c.Position,
		c.DeviceName, c.FirmwareVersion, c.HardwareVersion, c.ChargerID)
	return mapErr(err)
}

func (s *Store) ControllerExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `select exists(select 1 from charging_controller where id=$1)`, id).Scan(&ok)
	return ok, err
}

func (s *Store) OpenSession(ctx context.Context, start model.SessionStart) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		insert into charging_session (controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp)
		values ($1,$2,$3,$4,$5)
		returning id
	`, start.ControllerID, start.StartTime, start.StartReading, start.RFIDTag, start.RFIDTime).Scan(&id)
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (s *Store) FindOpenSession(ctx context.Context, controllerID string) (*model.ChargingSession, error) {
	var sess model.ChargingSession
	err := s.db.QueryRow(ctx, `
		select id, controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp
		from charging_session
		where controller_id=$1 and end_timestamp is null
		order by start_timestamp desc
		limit 1
	`, controllerID).Scan(&sess.ID, &sess.ControllerID, &sess.StartTime, &sess.StartReading, &sess.RFIDTag, &sess.RFIDTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.StartTime = sess.StartTime.UTC()
	return &sess, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID int64, end model.SessionEnd) error {
	tag, err := s.db.Exec(ctx, `
		update charging_session set
		  end_timestamp=$2, end_real_power=$3, consumption=$4, duration=$5,
		  rfid_tag=coalesce(rfid_tag, $6), rfid_timestamp=case when rfid_tag is null then $7 else rfid_timestamp end
		where id=$1 and end_timestamp is null
	`, sessionID, end.EndTime, end.EndReading, end.Consumption, end.Duration.Seconds(), end.RFIDTag, end.RFIDTime)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: open session %d", store.ErrNotFound, sessionID)
	}
	return nil
}

// Sessions returns every session of a controller, oldest first.
func (s *Store) Sessions(ctx context.Context, controllerID string) ([]model.ChargingSession, error) {
	rows, err := s.db.Query(ctx, `
		select id, controller_id, start_timestamp, start_real_power, rfid_tag, rfid_timestamp,
		       end_timestamp, end_real_power, consumption, duration
		from charging_session where controller_id=$1
		order by start_timestamp asc, id asc
	`, controllerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChargingSession
	for rows.Next() {
		var (
			sess model.ChargingSession
			secs *float64
		)
		if err := rows.Scan(&sess.ID, &sess.ControllerID, &sess.StartTime, &sess.StartReading, &sess.RFIDTag, &sess.RFIDTime,
			&sess.EndTime, &sess.EndReading, &sess.Consumption, &secs); err != nil {
			return nil, err
		}
		if secs != nil {
			d := time.Duration(*secs * float64(time.Second))
			sess.Duration = &d
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// mapErr turns integrity violations into store.ErrConstraint.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23505", "23514":
			return fmt.Errorf("%w: %s", store.ErrConstraint, pgErr.Message)
		}
	}
	return err
}
