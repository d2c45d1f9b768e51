package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ridesync/internal/config"
	"ridesync/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore is the remote store reached directly over the Postgres wire
// protocol.
type PostgresStore struct {
	pool         *pgxpool.Pool
	probeTimeout time.Duration
	readTimeout  time.Duration
	logger       zerolog.Logger
}

func NewPostgresStore(ctx context.Context, cfg config.RemoteConfig, logger *zerolog.Logger) (*PostgresStore, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "remote_pg").Logger()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}

	// The pool connects lazily, so an offline start still succeeds.
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	readTimeout := cfg.Timeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &PostgresStore{pool: pool, probeTimeout: probeTimeout, readTimeout: readTimeout, logger: l}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Apply(ctx context.Context, item models.QueueItem) error {
	var err error
	switch item.OperationKind {
	case models.OpUpsertUser:
		err = s.upsertUser(ctx, item.Payload)
	case models.OpUpsertTrip:
		err = s.upsertTrip(ctx, item.Payload)
	case models.OpCreateBooking:
		err = s.createBooking(ctx, item.Payload)
	case models.OpUpdateBooking:
		err = s.updateBooking(ctx, item.TargetID, item.Payload)
	default:
		err = &WriteError{Class: ClassRejected, Err: fmt.Errorf("unknown operation kind")}
	}
	if err == nil {
		return nil
	}

	var we *WriteError
	if errors.As(err, &we) {
		we.Op = item.OperationKind
		return we
	}
	return &WriteError{Class: classifyPg(err), Op: item.OperationKind, Err: err}
}

func decodePayload(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &WriteError{Class: ClassRejected, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) upsertUser(ctx context.Context, raw json.RawMessage) error {
	var p models.UserPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, phone_number, role, password, first_name, last_name, middle_name, full_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number,
			role = EXCLUDED.role,
			password = COALESCE(EXCLUDED.password, users.password),
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			middle_name = EXCLUDED.middle_name,
			full_name = EXCLUDED.full_name`,
		p.ID, p.Email, p.PhoneNumber, p.Role, nullable(p.Password),
		nullable(p.FirstName), nullable(p.LastName), nullable(p.MiddleName), nullable(p.FullName))
	return err
}

func (s *PostgresStore) upsertTrip(ctx context.Context, raw json.RawMessage) error {
	var t models.TripRecord
	if err := decodePayload(raw, &t); err != nil {
		return err
	}

	args := []any{t.DriverID, t.Date, t.Price, t.TotalSeats, t.AvailableSeats, t.From, t.To,
		t.DepartureAddress, t.ArrivalAddress, t.DepartureTime, t.ArrivalTime, t.BusPlate, t.Type}

	if t.ID == "" {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO trips (driver_id, date, price, total_seats, available_seats, "from", "to",
				departure_address, arrival_address, departure_time, arrival_time, bus_plate, type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, args...)
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO trips (driver_id, date, price, total_seats, available_seats, "from", "to",
			departure_address, arrival_address, departure_time, arrival_time, bus_plate, type, id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			date = EXCLUDED.date,
			price = EXCLUDED.price,
			total_seats = EXCLUDED.total_seats,
			available_seats = EXCLUDED.available_seats,
			"from" = EXCLUDED."from",
			"to" = EXCLUDED."to",
			departure_address = EXCLUDED.departure_address,
			arrival_address = EXCLUDED.arrival_address,
			departure_time = EXCLUDED.departure_time,
			arrival_time = EXCLUDED.arrival_time,
			bus_plate = EXCLUDED.bus_plate,
			type = EXCLUDED.type`, append(args, t.ID)...)
	return err
}

func (s *PostgresStore) createBooking(ctx context.Context, raw json.RawMessage) error {
	var b models.BookingPayload
	if err := decodePayload(raw, &b); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bookings (id, trip_id, passenger_id, passenger_name, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.TripID, b.PassengerID, b.PassengerName, b.Status)
	return err
}

func (s *PostgresStore) updateBooking(ctx context.Context, id string, raw json.RawMessage) error {
	if id == "" {
		return &WriteError{Class: ClassRejected, Err: fmt.Errorf("missing target id")}
	}
	var p models.BookingStatusPatch
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `UPDATE bookings SET status = $1 WHERE id = $2`, p.Status, id)
	if err != nil {
		return err
	}
	// A patch matching no rows is a no-op remotely as well.
	if tag.RowsAffected() == 0 {
		s.logger.Warn().Str("booking_id", id).Msg("status patch matched no booking")
	}
	return nil
}

func (s *PostgresStore) CheckConnection(ctx context.Context) models.ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `SELECT id FROM users LIMIT 1`); err != nil {
		s.logger.Debug().Err(err).Msg("remote unreachable")
		return models.ConnectionStatus{Reachable: false}
	}
	return models.ConnectionStatus{Reachable: true}
}

func (s *PostgresStore) FetchUsers(ctx context.Context) ([]json.RawMessage, error) {
	return s.fetch(ctx, "users", `SELECT to_jsonb(t) FROM users t`)
}

func (s *PostgresStore) FetchTrips(ctx context.Context) ([]json.RawMessage, error) {
	return s.fetch(ctx, "trips", `SELECT to_jsonb(t) FROM trips t ORDER BY t.date ASC`)
}

func (s *PostgresStore) FetchBookings(ctx context.Context) ([]json.RawMessage, error) {
	return s.fetch(ctx, "bookings", `SELECT to_jsonb(t) FROM bookings t ORDER BY t.created_at DESC`)
}

func (s *PostgresStore) FetchNotifications(ctx context.Context) ([]json.RawMessage, error) {
	return s.fetch(ctx, "notifications", `SELECT to_jsonb(t) FROM notifications t ORDER BY t.created_at DESC`)
}

func (s *PostgresStore) fetch(ctx context.Context, table, query string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var row []byte
		if err := rows.Scan(&row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, json.RawMessage(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	return out, nil
}

// classifyPg treats data, integrity and schema errors as rejections. Every
// other failure, including connection loss, is transient.
func classifyPg(err error) ErrorClass {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ClassTransient
	}
	state := pgErr.SQLState()
	if len(state) < 2 {
		return ClassTransient
	}
	switch state[:2] {
	case "22", // data_exception
		"23", // integrity_constraint_violation
		"42": // syntax_error_or_access_rule_violation
		return ClassRejected
	default:
		return ClassTransient
	}
}
