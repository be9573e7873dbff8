// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// ConvertLeadRequest carries the optional details collected at conversion.
// Names default to a split of the lead's recorded name; a property, when
// supplied, becomes the new customer's primary site.
type ConvertLeadRequest struct {
	FirstName string            `json:"first_name,omitempty"`
	LastName  string            `json:"last_name,omitempty"`
	Property  *structs.Property `json:"property,omitempty"`
}

// ConvertLead turns a lead into a customer exactly once. A second conversion
// attempt is rejected as a state error; the lead row keeps the link to the
// customer it produced.
func (c *Core) ConvertLead(ctx context.Context, leadID uuid.UUID, req *ConvertLeadRequest) (*structs.Customer, error) {
	if req == nil {
		req = &ConvertLeadRequest{}
	}

	var customer *structs.Customer
	err := c.store.WithTransaction(ctx, func(tx Store) error {
		lead, err := tx.LeadByIDForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if lead.Converted() {
			return structs.NewErrStateRejection("lead_converted",
				"lead %s was already converted to customer %s", leadID, lead.CustomerID)
		}

		first, last := req.FirstName, req.LastName
		if first == "" && last == "" {
			first, last = splitName(lead.Name)
		}

		customer = &structs.Customer{
			FirstName: first,
			LastName:  last,
			Email:     lead.Email,
			Phone:     lead.Phone,
			Notes:     lead.Notes,
		}
		if err := tx.CreateCustomer(ctx, customer); err != nil {
			return err
		}

		if req.Property != nil {
			prop := *req.Property
			prop.CustomerID = customer.ID
			prop.IsPrimary = true
			if err := tx.CreateProperty(ctx, &prop); err != nil {
				return err
			}
		}

		now := c.now()
		lead.ConvertedAt = &now
		lead.CustomerID = &customer.ID
		return tx.UpdateLead(ctx, lead)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("lead converted", "lead", leadID, "customer", customer.ID)
	return customer, nil
}

// splitName breaks a free-form name at its last space; single-word names
// land in the last-name slot.
func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return "", name
	}
	return name[:idx], strings.TrimSpace(name[idx+1:])
}
