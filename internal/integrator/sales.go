// ABOUTME: Service ticket and offer workflows over the business store
// ABOUTME: Ticket priority falls back to the linked state record's service priority

package integrator

import (
	"context"

	"github.com/2389/hvac-mesh/internal/store"
)

// ReactionSigned is the offer reaction type that marks an offer signed.
const ReactionSigned = "signed"

// RegisterServiceTicket opens a work order against a device. The device
// and customer must exist. A zero priority is taken from the service
// priority of the state record linked to the device, when there is one.
func (i *Integrator) RegisterServiceTicket(ctx context.Context, t *store.ServiceTicket) (int64, error) {
	id, step, err := i.registerTicket(ctx, t)
	if err != nil {
		err = stepErr(WorkflowRegisterServiceTicket, step, err)
	}
	i.record(ctx, store.AuditRegisterServiceTicket, "device", t.DeviceID, err, map[string]any{
		"ticket_id":   id,
		"ticket_type": t.TicketType,
		"priority":    t.Priority,
	})
	if err != nil {
		return 0, err
	}
	i.logger.Info("registered service ticket", "ticket_id", id, "device_id", t.DeviceID, "priority", t.Priority)
	return id, nil
}

func (i *Integrator) registerTicket(ctx context.Context, t *store.ServiceTicket) (int64, string, error) {
	dev, err := i.business.GetDevice(ctx, t.DeviceID)
	if err != nil {
		return 0, StepVerifyDevice, err
	}
	if _, err := i.business.GetCustomer(ctx, t.CustomerID); err != nil {
		return 0, StepVerifyCustomer, err
	}
	if t.Priority == 0 && dev.StateID != 0 {
		rec, err := i.states.Snapshot(ctx, dev.StateID)
		if err != nil {
			return 0, StepVerifyState, err
		}
		t.Priority = rec.Parameters.ServicePriority
	}
	id, err := i.business.CreateServiceTicket(ctx, t)
	if err != nil {
		return 0, StepCreateTicket, err
	}
	return id, "", nil
}

// CreateOffer stores an offer for an existing customer.
func (i *Integrator) CreateOffer(ctx context.Context, o *store.Offer) (int64, error) {
	id, err := i.business.CreateOffer(ctx, o)
	if err != nil {
		err = stepErr(WorkflowCreateOffer, StepCreateOffer, err)
	}
	i.record(ctx, store.AuditCreateOffer, "customer", o.CustomerID, err, map[string]any{
		"offer_id":    id,
		"gross_value": o.GrossValue,
	})
	if err != nil {
		return 0, err
	}
	i.logger.Info("created offer", "offer_id", id, "customer_id", o.CustomerID)
	return id, nil
}

// OfferView is an offer with its tracked reactions.
type OfferView struct {
	Offer     *store.Offer          `json:"offer"`
	Reactions []store.OfferReaction `json:"reactions"`
}

// Offer returns an offer and its reactions.
func (i *Integrator) Offer(ctx context.Context, id int64) (OfferView, error) {
	o, err := i.business.GetOffer(ctx, id)
	if err != nil {
		return OfferView{}, err
	}
	reactions, err := i.business.ListOfferReactions(ctx, id)
	if err != nil {
		return OfferView{}, err
	}
	return OfferView{Offer: o, Reactions: reactions}, nil
}

// RecordOfferReaction appends a reaction to an offer. A signed reaction
// then marks the offer signed; if that fails the reaction stays recorded.
func (i *Integrator) RecordOfferReaction(ctx context.Context, r *store.OfferReaction) (int64, error) {
	id, step, err := i.recordReaction(ctx, r)
	if err != nil {
		err = stepErr(WorkflowRecordOfferReaction, step, err)
	}
	i.record(ctx, store.AuditRecordOfferReaction, "offer", r.OfferID, err, map[string]any{
		"reaction_id":   id,
		"reaction_type": r.ReactionType,
	})
	if err != nil {
		return id, err
	}
	return id, nil
}

func (i *Integrator) recordReaction(ctx context.Context, r *store.OfferReaction) (int64, string, error) {
	if _, err := i.business.GetOffer(ctx, r.OfferID); err != nil {
		return 0, StepLoadOffer, err
	}
	id, err := i.business.RecordOfferReaction(ctx, r)
	if err != nil {
		return 0, StepRecordReaction, err
	}
	if r.ReactionType == ReactionSigned {
		if err := i.business.MarkOfferSigned(ctx, r.OfferID, r.OccurredAt); err != nil {
			return id, StepMarkSigned, err
		}
		i.logger.Info("offer signed", "offer_id", r.OfferID)
	}
	return id, "", nil
}
