package reservation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/ride-booking/internal/models"
)

// PostgresStore persists reservations in Postgres via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *models.Reservation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reservations(
			id, owner_id, departure, destination, waypoints, flight_number,
			scheduled_at, passengers, vehicle_id, options,
			distance_km, duration_min,
			base_price, distance_cost, time_cost, options_cost, total,
			payment_method, payment_status, payment_reference,
			status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		r.ID, r.OwnerID, r.Departure, r.Destination, pq.Array(r.Waypoints), r.FlightNumber,
		r.ScheduledAt, r.Passengers, r.VehicleID, pq.Array(r.Options),
		r.DistanceKm, r.DurationMin,
		r.Quote.BasePrice, r.Quote.DistanceCost, r.Quote.TimeCost, r.Quote.OptionsCost, r.Quote.Total,
		r.PaymentMethod, r.PaymentStatus, r.PaymentReference,
		r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, departure, destination, waypoints, flight_number,
		       scheduled_at, passengers, vehicle_id, options,
		       distance_km, duration_min,
		       base_price, distance_cost, time_cost, options_cost, total,
		       payment_method, payment_status, payment_reference,
		       status, created_at
		FROM reservations
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var r models.Reservation
		var waypoints, options pq.StringArray
		if err := rows.Scan(
			&r.ID, &r.OwnerID, &r.Departure, &r.Destination, &waypoints, &r.FlightNumber,
			&r.ScheduledAt, &r.Passengers, &r.VehicleID, &options,
			&r.DistanceKm, &r.DurationMin,
			&r.Quote.BasePrice, &r.Quote.DistanceCost, &r.Quote.TimeCost, &r.Quote.OptionsCost, &r.Quote.Total,
			&r.PaymentMethod, &r.PaymentStatus, &r.PaymentReference,
			&r.Status, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Waypoints = waypoints
		r.Options = options
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
