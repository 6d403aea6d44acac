// ABOUTME: Customer, building, device, communication and service ticket tables
// ABOUTME: Business-entity persistence consumed by the integrator workflows

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateCustomer inserts a customer and returns its id.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *Customer) (int64, error) {
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (name, email, phone, address, customer_type, registered_at, wealth_score, last_contact, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.Name,
		nullString(c.Email),
		nullString(c.Phone),
		nullString(c.Address),
		nullString(c.CustomerType),
		c.RegisteredAt.UTC().Format(time.RFC3339),
		nullFloat(c.WealthScore),
		nullTime(c.LastContact),
		nullString(c.Notes),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting customer: %w", err)
	}
	return s.assignID(res, &c.ID, "customer")
}

// GetCustomer retrieves a customer by ID.
// Returns ErrNotFound if the customer doesn't exist.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var (
		c                                   Customer
		email, phone, address, ctype, notes sql.NullString
		registeredAt                        string
		lastContact                         sql.NullString
		wealth                              sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, customer_type, registered_at, wealth_score, last_contact, notes
		FROM customers WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &email, &phone, &address, &ctype, &registeredAt, &wealth, &lastContact, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying customer: %w", err)
	}

	c.Email, c.Phone, c.Address, c.CustomerType, c.Notes = email.String, phone.String, address.String, ctype.String, notes.String
	c.WealthScore = floatPtr(wealth)
	if c.RegisteredAt, err = time.Parse(time.RFC3339, registeredAt); err != nil {
		return nil, fmt.Errorf("parsing registered_at: %w", err)
	}
	if c.LastContact, err = parseNullTime(lastContact); err != nil {
		return nil, fmt.Errorf("parsing last_contact: %w", err)
	}
	return &c, nil
}

// UpdateWealthScore sets a customer's wealth score.
// Returns ErrNotFound if the customer doesn't exist.
func (s *SQLiteStore) UpdateWealthScore(ctx context.Context, customerID int64, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET wealth_score = ? WHERE id = ?`, score, customerID)
	if err != nil {
		return fmt.Errorf("updating wealth score: %w", err)
	}
	return requireAffected(res, "customer", customerID)
}

// CreateBuilding inserts a building and returns its id.
func (s *SQLiteStore) CreateBuilding(ctx context.Context, b *Building) (int64, error) {
	var lon, lat any
	if b.Location != nil {
		lon, lat = b.Location.Longitude, b.Location.Latitude
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO buildings (customer_id, name, address, longitude, latitude, building_type, area, floors, year_built, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.CustomerID,
		b.Name,
		b.Address,
		lon,
		lat,
		nullString(b.BuildingType),
		b.Area,
		b.Floors,
		b.YearBuilt,
		nullString(b.Notes),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting building for customer %d: %w", b.CustomerID, ErrConstraint)
		}
		return 0, fmt.Errorf("inserting building: %w", err)
	}
	return s.assignID(res, &b.ID, "building")
}

// InstallationMap lists buildings for a map view, optionally narrowed to a
// customer and an address region.
func (s *SQLiteStore) InstallationMap(ctx context.Context, filter MapFilter) ([]Building, error) {
	query := `
		SELECT id, customer_id, name, address, longitude, latitude, building_type, area, floors, year_built, notes
		FROM buildings WHERE 1=1`
	var args []any
	if filter.CustomerID != 0 {
		query += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	if filter.Region != "" {
		query += ` AND address LIKE ? COLLATE NOCASE`
		args = append(args, "%"+filter.Region+"%")
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying installation map: %w", err)
	}
	defer rows.Close()

	var out []Building
	for rows.Next() {
		var (
			b            Building
			lon, lat     sql.NullFloat64
			btype, notes sql.NullString
			area         sql.NullFloat64
			floors, year sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.Name, &b.Address, &lon, &lat, &btype, &area, &floors, &year, &notes); err != nil {
			return nil, fmt.Errorf("scanning building: %w", err)
		}
		if lon.Valid && lat.Valid {
			b.Location = &GeoPoint{Longitude: lon.Float64, Latitude: lat.Float64}
		}
		b.BuildingType, b.Notes = btype.String, notes.String
		b.Area, b.Floors, b.YearBuilt = area.Float64, int(floors.Int64), int(year.Int64)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buildings: %w", err)
	}
	return out, nil
}

// CreateDevice inserts a device and returns its id.
func (s *SQLiteStore) CreateDevice(ctx context.Context, d *Device) (int64, error) {
	var technical any
	if d.TechnicalData != nil {
		data, err := json.Marshal(d.TechnicalData)
		if err != nil {
			return 0, fmt.Errorf("marshaling technical data: %w", err)
		}
		technical = string(data)
	}
	if d.Status == "" {
		d.Status = "active"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (building_id, state_id, model, serial_number, installed_at, last_service_at, status, location, photo_url, technical_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.BuildingID,
		d.StateID,
		d.Model,
		nullString(d.SerialNumber),
		nullTime(d.InstalledAt),
		nullTime(d.LastServiceAt),
		d.Status,
		nullString(d.Location),
		nullString(d.PhotoURL),
		technical,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting device for building %d: %w", d.BuildingID, ErrConstraint)
		}
		return 0, fmt.Errorf("inserting device: %w", err)
	}
	return s.assignID(res, &d.ID, "device")
}

// GetDevice retrieves a device by ID.
// Returns ErrNotFound if the device doesn't exist.
func (s *SQLiteStore) GetDevice(ctx context.Context, id int64) (*Device, error) {
	var (
		d                                  Device
		serial, location, photo, technical sql.NullString
		installedAt, lastServiceAt         sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, building_id, state_id, model, serial_number, installed_at, last_service_at, status, location, photo_url, technical_data
		FROM devices WHERE id = ?
	`, id).Scan(&d.ID, &d.BuildingID, &d.StateID, &d.Model, &serial, &installedAt, &lastServiceAt, &d.Status, &location, &photo, &technical)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	d.SerialNumber, d.Location, d.PhotoURL = serial.String, location.String, photo.String
	if d.InstalledAt, err = parseNullTime(installedAt); err != nil {
		return nil, fmt.Errorf("parsing installed_at: %w", err)
	}
	if d.LastServiceAt, err = parseNullTime(lastServiceAt); err != nil {
		return nil, fmt.Errorf("parsing last_service_at: %w", err)
	}
	if technical.Valid {
		if err := json.Unmarshal([]byte(technical.String), &d.TechnicalData); err != nil {
			return nil, fmt.Errorf("unmarshaling technical data: %w", err)
		}
	}
	return &d, nil
}

// LinkDeviceState points a device at a state record.
// Returns ErrNotFound if the device doesn't exist.
func (s *SQLiteStore) LinkDeviceState(ctx context.Context, deviceID, stateID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET state_id = ? WHERE id = ?`, stateID, deviceID)
	if err != nil {
		return fmt.Errorf("linking device state: %w", err)
	}
	return requireAffected(res, "device", deviceID)
}

// StateIDForDevice returns the state record a device is linked to.
// Returns ErrNotFound if the device doesn't exist or is unlinked.
func (s *SQLiteStore) StateIDForDevice(ctx context.Context, deviceID int64) (int64, error) {
	var stateID int64
	err := s.db.QueryRowContext(ctx, `SELECT state_id FROM devices WHERE id = ?`, deviceID).Scan(&stateID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("querying device state: %w", err)
	}
	if stateID == 0 {
		return 0, fmt.Errorf("device %d has no linked state: %w", deviceID, ErrNotFound)
	}
	return stateID, nil
}

// ListDeviceIDs returns every device id in ascending order.
func (s *SQLiteStore) ListDeviceIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateCommunication inserts a communication and returns its id.
func (s *SQLiteStore) CreateCommunication(ctx context.Context, c *Communication) (int64, error) {
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = "received"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO communications (customer_id, channel, direction, occurred_at, content, transcript, category, status, sentiment, classification)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.CustomerID,
		c.Channel,
		c.Direction,
		c.OccurredAt.UTC().Format(time.RFC3339),
		nullString(c.Content),
		nullString(c.Transcript),
		nullString(c.Category),
		c.Status,
		nullFloat(c.Sentiment),
		nullString(c.Classification),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting communication: %w", ErrConstraint)
		}
		return 0, fmt.Errorf("inserting communication: %w", err)
	}
	return s.assignID(res, &c.ID, "communication")
}

// GetCommunication retrieves a communication by ID.
// Returns ErrNotFound if the communication doesn't exist.
func (s *SQLiteStore) GetCommunication(ctx context.Context, id int64) (*Communication, error) {
	var (
		c                                             Communication
		occurredAt                                    string
		content, transcript, category, classification sql.NullString
		sentiment                                     sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, channel, direction, occurred_at, content, transcript, category, status, sentiment, classification
		FROM communications WHERE id = ?
	`, id).Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Direction, &occurredAt, &content, &transcript, &category, &c.Status, &sentiment, &classification)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("communication %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying communication: %w", err)
	}

	c.Content, c.Transcript, c.Category, c.Classification = content.String, transcript.String, category.String, classification.String
	c.Sentiment = floatPtr(sentiment)
	if c.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
		return nil, fmt.Errorf("parsing occurred_at: %w", err)
	}
	return &c, nil
}

// CreateServiceTicket inserts a service ticket and returns its id.
func (s *SQLiteStore) CreateServiceTicket(ctx context.Context, t *ServiceTicket) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = TicketActive
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO service_tickets (device_id, customer_id, ticket_type, priority, status, created_at, scheduled_at, description, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.DeviceID,
		t.CustomerID,
		t.TicketType,
		t.Priority,
		t.Status,
		t.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(t.ScheduledAt),
		nullString(t.Description),
		nullString(t.Notes),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("inserting service ticket: %w", ErrConstraint)
		}
		return 0, fmt.Errorf("inserting service ticket: %w", err)
	}
	return s.assignID(res, &t.ID, "service ticket")
}

// DashboardStats counts customers, devices and active tickets and averages
// every recorded correlation degree.
func (s *SQLiteStore) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM customers`, &stats.Customers},
		{`SELECT COUNT(*) FROM devices`, &stats.Devices},
		{`SELECT COUNT(*) FROM service_tickets WHERE status = 'active'`, &stats.ActiveTickets},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting for dashboard: %w", err)
		}
	}

	avg, err := s.averageDegree(ctx)
	if err != nil {
		return nil, err
	}
	stats.AverageDegree = avg
	return &stats, nil
}

func (s *SQLiteStore) assignID(res sql.Result, dest *int64, entity string) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading %s id: %w", entity, err)
	}
	*dest = id
	s.logger.Debug("created "+entity, "id", id)
	return id, nil
}

func requireAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
