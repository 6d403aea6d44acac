// ABOUTME: Composite integrator workflows over business storage, state and correlation
// ABOUTME: Each workflow is a fixed ordered sequence of steps with no rollback

package integrator

import (
	"context"
	"fmt"

	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/store"
)

// RegisterCustomer stores a new customer.
func (i *Integrator) RegisterCustomer(ctx context.Context, c *store.Customer) (int64, error) {
	id, err := i.business.CreateCustomer(ctx, c)
	if err != nil {
		err = stepErr(WorkflowRegisterCustomer, StepCreateCustomer, err)
	}
	i.record(ctx, store.AuditRegisterCustomer, "customer", id, err, nil)
	if err != nil {
		return 0, err
	}
	i.logger.Info("registered customer", "customer_id", id)
	return id, nil
}

// RegisterBuilding stores a new building.
func (i *Integrator) RegisterBuilding(ctx context.Context, b *store.Building) (int64, error) {
	id, err := i.business.CreateBuilding(ctx, b)
	if err != nil {
		err = stepErr(WorkflowRegisterBuilding, StepCreateBuilding, err)
	}
	i.record(ctx, store.AuditRegisterBuilding, "building", id, err, map[string]any{"customer_id": b.CustomerID})
	if err != nil {
		return 0, err
	}
	i.logger.Info("registered building", "building_id", id, "customer_id", b.CustomerID)
	return id, nil
}

// DeviceRegistration is the result of RegisterDevice.
type DeviceRegistration struct {
	DeviceID   int64            `json:"device_id"`
	StateID    int64            `json:"state_id"`
	CrossCheck CrossCheckResult `json:"cross_check"`
}

// RegisterDevice creates the device, links it to d.StateID when set, then
// cross-checks it against known devices. The device is created unlinked and
// stays unlinked if the link step fails.
func (i *Integrator) RegisterDevice(ctx context.Context, d *store.Device) (DeviceRegistration, error) {
	stateID := d.StateID
	d.StateID = 0

	var reg DeviceRegistration
	id, err := i.business.CreateDevice(ctx, d)
	if err != nil {
		err = stepErr(WorkflowRegisterDevice, StepCreateDevice, err)
		i.record(ctx, store.AuditRegisterDevice, "device", 0, err, nil)
		return reg, err
	}
	reg.DeviceID = id

	if stateID != 0 {
		if step, err := i.linkState(ctx, id, stateID); err != nil {
			err = stepErr(WorkflowRegisterDevice, step, err)
			i.record(ctx, store.AuditRegisterDevice, "device", id, err, map[string]any{"state_id": stateID})
			return reg, err
		}
		d.StateID = stateID
		reg.StateID = stateID
	}

	cc, err := i.crossCheck(ctx, id)
	reg.CrossCheck = cc
	if err != nil {
		err = stepErr(WorkflowRegisterDevice, StepListCandidates, err)
	}
	i.record(ctx, store.AuditRegisterDevice, "device", id, err, map[string]any{
		"state_id": stateID,
		"checked":  len(cc.Checked),
		"matched":  cc.Match != nil,
	})
	if err != nil {
		return reg, err
	}

	i.logger.Info("registered device",
		"device_id", id,
		"state_id", stateID,
		"checked", len(cc.Checked),
		"matched", cc.Match != nil)
	return reg, nil
}

// LinkDeviceState verifies the state record exists, then points the device
// at it.
func (i *Integrator) LinkDeviceState(ctx context.Context, deviceID, stateID int64) error {
	step, err := i.linkState(ctx, deviceID, stateID)
	if err != nil {
		err = stepErr(WorkflowLinkDeviceState, step, err)
	}
	i.record(ctx, store.AuditLinkDeviceState, "device", deviceID, err, map[string]any{"state_id": stateID})
	if err != nil {
		return err
	}
	i.logger.Info("linked device state", "device_id", deviceID, "state_id", stateID)
	return nil
}

func (i *Integrator) linkState(ctx context.Context, deviceID, stateID int64) (string, error) {
	if _, err := i.states.Snapshot(ctx, stateID); err != nil {
		return StepVerifyState, err
	}
	if err := i.business.LinkDeviceState(ctx, deviceID, stateID); err != nil {
		return StepUpdateDevice, err
	}
	return "", nil
}

// PairFailure is a candidate pair whose measurement failed.
type PairFailure struct {
	DeviceID int64  `json:"device_id"`
	Error    string `json:"error"`
}

// CrossCheckResult describes one CrossCheck run.
type CrossCheckResult struct {
	DeviceID int64               `json:"device_id"`
	Checked  []int64             `json:"checked"`
	Failures []PairFailure       `json:"failures,omitempty"`
	Match    *correlation.Record `json:"match,omitempty"`
	Notified bool                `json:"notified"`
}

// CrossCheck measures deviceID against each candidate in order and stops at
// the first pair above the notify threshold. Pair failures are logged and
// skipped; only a failure to list candidates is returned.
func (i *Integrator) CrossCheck(ctx context.Context, deviceID int64) (CrossCheckResult, error) {
	res, err := i.crossCheck(ctx, deviceID)
	if err != nil {
		err = stepErr(WorkflowCrossCheck, StepListCandidates, err)
	}
	i.record(ctx, store.AuditCrossCheck, "device", deviceID, err, map[string]any{
		"checked":  len(res.Checked),
		"failures": len(res.Failures),
		"matched":  res.Match != nil,
	})
	return res, err
}

func (i *Integrator) crossCheck(ctx context.Context, deviceID int64) (CrossCheckResult, error) {
	res := CrossCheckResult{DeviceID: deviceID, Checked: []int64{}}

	candidates, err := i.candidateIDs(ctx, deviceID)
	if err != nil {
		return res, err
	}

	for _, other := range candidates {
		if other == deviceID {
			continue
		}
		out, err := i.correlator.ComputeAndStore(ctx, deviceID, other)
		if err != nil {
			i.logger.Warn("correlation measurement failed",
				"device_id", deviceID,
				"other_id", other,
				"error", err)
			res.Failures = append(res.Failures, PairFailure{DeviceID: other, Error: err.Error()})
			continue
		}
		res.Checked = append(res.Checked, other)
		i.logger.Debug("cross-check measured",
			"device_id", deviceID,
			"other_id", other,
			"degree", out.Record.Degree)

		if correlation.ShouldNotify(out.Record.Degree) {
			rec := out.Record
			res.Match = &rec
			res.Notified = out.Notified
			break
		}
	}
	return res, nil
}

func (i *Integrator) candidateIDs(ctx context.Context, deviceID int64) ([]int64, error) {
	if i.candidateLimit <= 0 {
		return i.candidates, nil
	}
	ids, err := i.business.ListDeviceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	out := make([]int64, 0, i.candidateLimit)
	for _, id := range ids {
		if id == deviceID {
			continue
		}
		if len(out) == i.candidateLimit {
			break
		}
		out = append(out, id)
	}
	return out, nil
}

// ComputeCorrelation measures one explicit pair. Notification above the
// threshold happens inside the correlator.
func (i *Integrator) ComputeCorrelation(ctx context.Context, deviceA, deviceB int64) (correlation.Result, error) {
	res, err := i.correlator.ComputeAndStore(ctx, deviceA, deviceB)
	if err != nil {
		return res, stepErr(WorkflowComputeCorrelation, StepCompute, err)
	}
	i.logger.Info("computed correlation",
		"device_a", deviceA,
		"device_b", deviceB,
		"degree", res.Record.Degree,
		"notified", res.Notified)
	return res, nil
}

// CommunicationResult is the result of RecordCommunication.
type CommunicationResult struct {
	CommunicationID int64    `json:"communication_id"`
	WealthScore     *float64 `json:"wealth_score,omitempty"`
}

// RecordCommunication stores a communication. Phone calls with a
// transcript are then scored and the customer's wealth score updated.
func (i *Integrator) RecordCommunication(ctx context.Context, c *store.Communication) (CommunicationResult, error) {
	var res CommunicationResult
	id, err := i.business.CreateCommunication(ctx, c)
	if err != nil {
		err = stepErr(WorkflowRecordCommunication, StepCreateCommunication, err)
		i.record(ctx, store.AuditRecordCommunication, "customer", c.CustomerID, err, nil)
		return res, err
	}
	res.CommunicationID = id

	if c.Channel == store.ChannelPhone && c.Transcript != "" {
		score, err := i.scoreCustomer(ctx, c.CustomerID, c.Transcript)
		if err != nil {
			err = stepErr(WorkflowRecordCommunication, StepUpdateWealthScore, err)
			i.record(ctx, store.AuditRecordCommunication, "customer", c.CustomerID, err, map[string]any{"communication_id": id})
			return res, err
		}
		res.WealthScore = &score
	}

	i.record(ctx, store.AuditRecordCommunication, "customer", c.CustomerID, nil, map[string]any{
		"communication_id": id,
		"channel":          c.Channel,
	})
	i.logger.Info("recorded communication", "communication_id", id, "customer_id", c.CustomerID, "channel", c.Channel)
	return res, nil
}

// AnalyzeTranscript scores a transcript for the customer who owns the
// communication. An empty transcript uses the stored one.
func (i *Integrator) AnalyzeTranscript(ctx context.Context, communicationID int64, transcript string) (float64, error) {
	comm, err := i.business.GetCommunication(ctx, communicationID)
	if err != nil {
		err = stepErr(WorkflowAnalyzeTranscript, StepLoadCommunication, err)
		i.record(ctx, store.AuditAnalyzeTranscript, "communication", communicationID, err, nil)
		return 0, err
	}
	if transcript == "" {
		transcript = comm.Transcript
	}
	if transcript == "" {
		err := stepErr(WorkflowAnalyzeTranscript, StepLoadCommunication, ErrNoTranscript)
		i.record(ctx, store.AuditAnalyzeTranscript, "communication", communicationID, err, nil)
		return 0, err
	}

	score, err := i.scoreCustomer(ctx, comm.CustomerID, transcript)
	if err != nil {
		err = stepErr(WorkflowAnalyzeTranscript, StepUpdateWealthScore, err)
	}
	i.record(ctx, store.AuditAnalyzeTranscript, "communication", communicationID, err, map[string]any{
		"customer_id": comm.CustomerID,
		"score":       score,
	})
	return score, err
}

func (i *Integrator) scoreCustomer(ctx context.Context, customerID int64, transcript string) (float64, error) {
	score := i.scorer.Score(transcript)
	if err := i.business.UpdateWealthScore(ctx, customerID, score); err != nil {
		return score, err
	}
	i.logger.Info("updated wealth score from transcript", "customer_id", customerID, "score", score)
	return score, nil
}

// UpdateWealthScore sets a customer's wealth score directly.
func (i *Integrator) UpdateWealthScore(ctx context.Context, customerID int64, score float64) error {
	err := i.business.UpdateWealthScore(ctx, customerID, score)
	if err != nil {
		err = stepErr(WorkflowUpdateWealthScore, StepUpdateWealthScore, err)
	}
	i.record(ctx, store.AuditUpdateWealthScore, "customer", customerID, err, map[string]any{"score": score})
	return err
}

// InstallationMap lists buildings for a map view.
func (i *Integrator) InstallationMap(ctx context.Context, filter store.MapFilter) ([]store.Building, error) {
	return i.business.InstallationMap(ctx, filter)
}

// Dashboard summarizes the business tables.
func (i *Integrator) Dashboard(ctx context.Context) (*store.DashboardStats, error) {
	return i.business.DashboardStats(ctx)
}
