// ABOUTME: Store interfaces and business entity types for hvac-mesh persistence
// ABOUTME: Combines the state backend, correlation records and the business tables

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/state"
)

// ErrNotFound is returned when a requested entity does not exist. It is the
// same sentinel the state cache classifies as a missing record.
var ErrNotFound = state.ErrNotFound

// ErrConstraint is returned when a write violates a uniqueness or foreign
// key constraint.
var ErrConstraint = errors.New("constraint violation")

// Communication channels.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
	ChannelSMS   = "sms"
)

// Service ticket statuses.
const (
	TicketActive    = "active"
	TicketScheduled = "scheduled"
	TicketClosed    = "closed"
)

// Customer is a client owning buildings.
type Customer struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	CustomerType string     `json:"customer_type,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	WealthScore  *float64   `json:"wealth_score,omitempty"`
	LastContact  *time.Time `json:"last_contact,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// GeoPoint is a longitude/latitude pair.
type GeoPoint struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// Building is a site where devices are installed.
type Building struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Location     *GeoPoint `json:"location,omitempty"`
	BuildingType string    `json:"building_type,omitempty"`
	Area         float64   `json:"area,omitempty"`
	Floors       int       `json:"floors,omitempty"`
	YearBuilt    int       `json:"year_built,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// Device is an installed HVAC unit. StateID links it to the state record
// its agent owns; zero means unlinked.
type Device struct {
	ID            int64          `json:"id"`
	BuildingID    int64          `json:"building_id"`
	StateID       int64          `json:"state_id"`
	Model         string         `json:"model"`
	SerialNumber  string         `json:"serial_number,omitempty"`
	InstalledAt   *time.Time     `json:"installed_at,omitempty"`
	LastServiceAt *time.Time     `json:"last_service_at,omitempty"`
	Status        string         `json:"status"`
	Location      string         `json:"location,omitempty"`
	PhotoURL      string         `json:"photo_url,omitempty"`
	TechnicalData map[string]any `json:"technical_data,omitempty"`
}

// Communication is one contact with a customer.
type Communication struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"customer_id"`
	Channel        string    `json:"channel"`
	Direction      string    `json:"direction"`
	OccurredAt     time.Time `json:"occurred_at"`
	Content        string    `json:"content,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	Category       string    `json:"category,omitempty"`
	Status         string    `json:"status"`
	Sentiment      *float64  `json:"sentiment,omitempty"`
	Classification string    `json:"classification,omitempty"`
}

// ServiceTicket is a work order against a device.
type ServiceTicket struct {
	ID          int64      `json:"id"`
	DeviceID    int64      `json:"device_id"`
	CustomerID  int64      `json:"customer_id"`
	TicketType  string     `json:"ticket_type"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Description string     `json:"description,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// MapFilter narrows an installation map. Zero values match everything.
type MapFilter struct {
	CustomerID int64
	// Region is matched case-insensitively against the building address.
	Region string
}

// DashboardStats summarizes the business tables.
type DashboardStats struct {
	Customers     int64   `json:"customers"`
	Devices       int64   `json:"devices"`
	ActiveTickets int64   `json:"active_tickets"`
	AverageDegree float64 `json:"average_degree"`
}

// BusinessStore is the customer, building, device, ticket and offer surface
// used by the integrator workflows.
type BusinessStore interface {
	CreateCustomer(ctx context.Context, c *Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	UpdateWealthScore(ctx context.Context, customerID int64, score float64) error

	CreateBuilding(ctx context.Context, b *Building) (int64, error)
	InstallationMap(ctx context.Context, filter MapFilter) ([]Building, error)

	CreateDevice(ctx context.Context, d *Device) (int64, error)
	GetDevice(ctx context.Context, id int64) (*Device, error)
	LinkDeviceState(ctx context.Context, deviceID, stateID int64) error
	StateIDForDevice(ctx context.Context, deviceID int64) (int64, error)
	ListDeviceIDs(ctx context.Context) ([]int64, error)

	CreateCommunication(ctx context.Context, c *Communication) (int64, error)
	GetCommunication(ctx context.Context, id int64) (*Communication, error)
	CreateServiceTicket(ctx context.Context, t *ServiceTicket) (int64, error)

	CreateOffer(ctx context.Context, o *Offer) (int64, error)
	GetOffer(ctx context.Context, id int64) (*Offer, error)
	MarkOfferSigned(ctx context.Context, id int64, at time.Time) error
	RecordOfferReaction(ctx context.Context, r *OfferReaction) (int64, error)
	ListOfferReactions(ctx context.Context, offerID int64) ([]OfferReaction, error)

	DashboardStats(ctx context.Context) (*DashboardStats, error)
}

// AuditStore records integrator workflow outcomes.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// Store is everything the gateway persists.
type Store interface {
	state.Backend
	correlation.RecordStore
	BusinessStore
	AuditStore

	// ListStateIDs returns every stored state record id in ascending order.
	ListStateIDs(ctx context.Context) ([]int64, error)

	// Close releases any resources held by the store
	Close() error
}
