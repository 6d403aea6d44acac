// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject per-operation failures

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/state"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu             sync.RWMutex
	states         map[int64]state.Row
	correlations   []correlation.Record
	customers      map[int64]*Customer
	buildings      map[int64]*Building
	devices        map[int64]*Device
	communications map[int64]*Communication
	tickets        map[int64]*ServiceTicket
	offers         map[int64]*Offer
	reactions      []OfferReaction
	audit          []*AuditEntry
	nextID         map[string]int64
	failures       map[string]error
	calls          map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		states:         make(map[int64]state.Row),
		customers:      make(map[int64]*Customer),
		buildings:      make(map[int64]*Building),
		devices:        make(map[int64]*Device),
		communications: make(map[int64]*Communication),
		tickets:        make(map[int64]*ServiceTicket),
		offers:         make(map[int64]*Offer),
		failures:       make(map[string]error),
		calls:          make(map[string]int),
		nextID:         make(map[string]int64),
	}
}

// FailOn makes every later call to the named method return err. A nil err
// clears the failure.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls reports how many times the named method was invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// enter records the call and returns the injected failure, if any.
// Caller must hold m.mu for writing.
func (m *MockStore) enter(method string) error {
	m.calls[method]++
	return m.failures[method]
}

// allocID returns the next id for a table, starting at 1 like AUTOINCREMENT.
func (m *MockStore) allocID(table string) int64 {
	m.nextID[table]++
	return m.nextID[table]
}

func cloneRow(r state.Row) state.Row {
	r.CorrelationVector = slices.Clone(r.CorrelationVector)
	r.Parameters = slices.Clone(r.Parameters)
	return r
}

// LoadState returns a stored state row.
func (m *MockStore) LoadState(ctx context.Context, id int64) (state.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LoadState"); err != nil {
		return state.Row{}, err
	}
	r, ok := m.states[id]
	if !ok {
		return state.Row{}, fmt.Errorf("state %d: %w", id, ErrNotFound)
	}
	return cloneRow(r), nil
}

// SaveState upserts a state row.
func (m *MockStore) SaveState(ctx context.Context, row state.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveState"); err != nil {
		return err
	}
	m.states[row.ID] = cloneRow(row)
	return nil
}

// SaveParameters replaces the nested block of an existing row.
func (m *MockStore) SaveParameters(ctx context.Context, id int64, params []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveParameters"); err != nil {
		return err
	}
	r, ok := m.states[id]
	if !ok {
		return fmt.Errorf("state %d: %w", id, ErrNotFound)
	}
	r.Parameters = slices.Clone(params)
	m.states[id] = r
	return nil
}

// QueryStatesAbove returns rows whose first correlation sample exceeds minDegree.
func (m *MockStore) QueryStatesAbove(ctx context.Context, minDegree float64) ([]state.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("QueryStatesAbove"); err != nil {
		return nil, err
	}
	var out []state.Row
	for _, r := range m.states {
		if len(r.CorrelationVector) > 0 && r.CorrelationVector[0] > minDegree {
			out = append(out, cloneRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListStateIDs returns every stored state id in ascending order.
func (m *MockStore) ListStateIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListStateIDs"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// InsertCorrelation appends a correlation record.
func (m *MockStore) InsertCorrelation(ctx context.Context, rec *correlation.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertCorrelation"); err != nil {
		return 0, err
	}
	if rec.DeviceA == rec.DeviceB {
		return 0, fmt.Errorf("inserting correlation: %w", ErrConstraint)
	}
	if rec.MeasuredAt.IsZero() {
		rec.MeasuredAt = time.Now().UTC()
	}
	rec.ID = m.allocID("correlation_records")
	m.correlations = append(m.correlations, *rec)
	return rec.ID, nil
}

// CorrelationsForDevice returns records involving deviceID, highest degree first.
func (m *MockStore) CorrelationsForDevice(ctx context.Context, deviceID int64, minDegree float64) ([]correlation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CorrelationsForDevice"); err != nil {
		return nil, err
	}
	var out []correlation.Record
	for _, r := range m.correlations {
		if (r.DeviceA == deviceID || r.DeviceB == deviceID) && r.Degree >= minDegree {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Degree != out[j].Degree {
			return out[i].Degree > out[j].Degree
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateCustomer stores a customer.
func (m *MockStore) CreateCustomer(ctx context.Context, c *Customer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateCustomer"); err != nil {
		return 0, err
	}
	if c.RegisteredAt.IsZero() {
		c.RegisteredAt = time.Now().UTC()
	}
	c.ID = m.allocID("customers")
	cp := *c
	m.customers[c.ID] = &cp
	return c.ID, nil
}

// GetCustomer returns a copy of a stored customer.
func (m *MockStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// UpdateWealthScore sets a customer's wealth score.
func (m *MockStore) UpdateWealthScore(ctx context.Context, customerID int64, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateWealthScore"); err != nil {
		return err
	}
	c, ok := m.customers[customerID]
	if !ok {
		return fmt.Errorf("customer %d: %w", customerID, ErrNotFound)
	}
	c.WealthScore = &score
	return nil
}

// CreateBuilding stores a building owned by an existing customer.
func (m *MockStore) CreateBuilding(ctx context.Context, b *Building) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBuilding"); err != nil {
		return 0, err
	}
	if _, ok := m.customers[b.CustomerID]; !ok {
		return 0, fmt.Errorf("inserting building for customer %d: %w", b.CustomerID, ErrConstraint)
	}
	b.ID = m.allocID("buildings")
	cp := *b
	m.buildings[b.ID] = &cp
	return b.ID, nil
}

// InstallationMap lists buildings matching the filter in id order.
func (m *MockStore) InstallationMap(ctx context.Context, filter MapFilter) ([]Building, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InstallationMap"); err != nil {
		return nil, err
	}
	region := strings.ToLower(filter.Region)
	var out []Building
	for _, b := range m.buildings {
		if filter.CustomerID != 0 && b.CustomerID != filter.CustomerID {
			continue
		}
		if region != "" && !strings.Contains(strings.ToLower(b.Address), region) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateDevice stores a device installed in an existing building.
func (m *MockStore) CreateDevice(ctx context.Context, d *Device) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateDevice"); err != nil {
		return 0, err
	}
	if _, ok := m.buildings[d.BuildingID]; !ok {
		return 0, fmt.Errorf("inserting device for building %d: %w", d.BuildingID, ErrConstraint)
	}
	if d.Status == "" {
		d.Status = "active"
	}
	d.ID = m.allocID("devices")
	cp := *d
	m.devices[d.ID] = &cp
	return d.ID, nil
}

// GetDevice returns a copy of a stored device.
func (m *MockStore) GetDevice(ctx context.Context, id int64) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDevice"); err != nil {
		return nil, err
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

// LinkDeviceState points a device at a state record.
func (m *MockStore) LinkDeviceState(ctx context.Context, deviceID, stateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LinkDeviceState"); err != nil {
		return err
	}
	d, ok := m.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	d.StateID = stateID
	return nil
}

// StateIDForDevice returns the state record a device is linked to.
func (m *MockStore) StateIDForDevice(ctx context.Context, deviceID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("StateIDForDevice"); err != nil {
		return 0, err
	}
	d, ok := m.devices[deviceID]
	if !ok || d.StateID == 0 {
		return 0, fmt.Errorf("device %d: %w", deviceID, ErrNotFound)
	}
	return d.StateID, nil
}

// ListDeviceIDs returns every device id in ascending order.
func (m *MockStore) ListDeviceIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListDeviceIDs"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// CreateCommunication stores a communication from an existing customer.
func (m *MockStore) CreateCommunication(ctx context.Context, c *Communication) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateCommunication"); err != nil {
		return 0, err
	}
	if _, ok := m.customers[c.CustomerID]; !ok {
		return 0, fmt.Errorf("inserting communication: %w", ErrConstraint)
	}
	switch c.Channel {
	case ChannelEmail, ChannelPhone, ChannelSMS:
	default:
		return 0, fmt.Errorf("inserting communication: channel %q: %w", c.Channel, ErrConstraint)
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = "received"
	}
	c.ID = m.allocID("communications")
	cp := *c
	m.communications[c.ID] = &cp
	return c.ID, nil
}

// GetCommunication returns a copy of a stored communication.
func (m *MockStore) GetCommunication(ctx context.Context, id int64) (*Communication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetCommunication"); err != nil {
		return nil, err
	}
	c, ok := m.communications[id]
	if !ok {
		return nil, fmt.Errorf("communication %d: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// CreateServiceTicket stores a service ticket.
func (m *MockStore) CreateServiceTicket(ctx context.Context, t *ServiceTicket) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateServiceTicket"); err != nil {
		return 0, err
	}
	if _, ok := m.devices[t.DeviceID]; !ok {
		return 0, fmt.Errorf("inserting service ticket: %w", ErrConstraint)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = TicketActive
	}
	t.ID = m.allocID("service_tickets")
	cp := *t
	m.tickets[t.ID] = &cp
	return t.ID, nil
}

// Ticket returns a stored service ticket, or nil.
func (m *MockStore) Ticket(id int64) *ServiceTicket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// CreateOffer stores an offer.
func (m *MockStore) CreateOffer(ctx context.Context, o *Offer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateOffer"); err != nil {
		return 0, err
	}
	if _, ok := m.customers[o.CustomerID]; !ok {
		return 0, fmt.Errorf("inserting offer: %w", ErrConstraint)
	}
	prepareOffer(o)
	o.ID = m.allocID("offers")
	cp := *o
	m.offers[o.ID] = &cp
	return o.ID, nil
}

// GetOffer returns a stored offer.
func (m *MockStore) GetOffer(ctx context.Context, id int64) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetOffer"); err != nil {
		return nil, err
	}
	o, ok := m.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

// MarkOfferSigned sets an offer's status to signed.
func (m *MockStore) MarkOfferSigned(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkOfferSigned"); err != nil {
		return err
	}
	o, ok := m.offers[id]
	if !ok {
		return fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	at = at.UTC()
	o.Status = OfferSigned
	o.SignedAt = &at
	return nil
}

// RecordOfferReaction appends an offer reaction.
func (m *MockStore) RecordOfferReaction(ctx context.Context, r *OfferReaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RecordOfferReaction"); err != nil {
		return 0, err
	}
	if _, ok := m.offers[r.OfferID]; !ok {
		return 0, fmt.Errorf("inserting offer reaction: %w", ErrConstraint)
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}
	r.ID = m.allocID("offer_reactions")
	m.reactions = append(m.reactions, *r)
	return r.ID, nil
}

// ListOfferReactions returns an offer's reactions in insertion order.
func (m *MockStore) ListOfferReactions(ctx context.Context, offerID int64) ([]OfferReaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListOfferReactions"); err != nil {
		return nil, err
	}
	out := []OfferReaction{}
	for _, r := range m.reactions {
		if r.OfferID == offerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// DashboardStats summarizes the stored entities.
func (m *MockStore) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DashboardStats"); err != nil {
		return nil, err
	}
	stats := &DashboardStats{
		Customers: int64(len(m.customers)),
		Devices:   int64(len(m.devices)),
	}
	for _, t := range m.tickets {
		if t.Status == TicketActive {
			stats.ActiveTickets++
		}
	}
	if len(m.correlations) > 0 {
		var sum float64
		for _, r := range m.correlations {
			sum += r.Degree
		}
		stats.AverageDegree = sum / float64(len(m.correlations))
	}
	return stats, nil
}

// AppendAuditLog appends an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AppendAuditLog"); err != nil {
		return err
	}
	prepareAuditEntry(e)
	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

// ListAuditLog returns matching entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAuditLog"); err != nil {
		return nil, err
	}
	entries := []*AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.TargetType != "" && e.TargetType != f.TargetType {
			continue
		}
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit := normalizeAuditLimit(f.Limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// String summarizes the mock's contents for test failure messages.
func (m *MockStore) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return "MockStore{states=" + strconv.Itoa(len(m.states)) +
		" devices=" + strconv.Itoa(len(m.devices)) +
		" correlations=" + strconv.Itoa(len(m.correlations)) + "}"
}

var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
