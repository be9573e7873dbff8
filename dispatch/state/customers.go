// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// CustomerByID fetches one customer.
func (s *StateStore) CustomerByID(ctx context.Context, id uuid.UUID) (*structs.Customer, error) {
	var c structs.Customer
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "customer", id.String())
	}
	return &c, nil
}

// CreateCustomer persists a new customer with a normalized phone.
func (s *StateStore) CreateCustomer(ctx context.Context, c *structs.Customer) error {
	c.Phone = structs.NormalizePhone(c.Phone)
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return translateErr(err, "customer", c.Phone)
	}
	return nil
}

// LeadByID fetches one lead.
func (s *StateStore) LeadByID(ctx context.Context, id uuid.UUID) (*structs.Lead, error) {
	var l structs.Lead
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "lead", id.String())
	}
	return &l, nil
}

// LeadByIDForUpdate fetches one lead holding its row lock.
func (s *StateStore) LeadByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Lead, error) {
	var l structs.Lead
	if err := s.db.WithContext(ctx).Clauses(forUpdate()).First(&l, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "lead", id.String())
	}
	return &l, nil
}

// UpdateLead saves a modified lead row.
func (s *StateStore) UpdateLead(ctx context.Context, l *structs.Lead) error {
	if err := s.db.WithContext(ctx).Save(l).Error; err != nil {
		return translateErr(err, "lead", l.ID.String())
	}
	return nil
}

// CreateProperty persists a new property.
func (s *StateStore) CreateProperty(ctx context.Context, p *structs.Property) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return translateErr(err, "property", p.Address)
	}
	return nil
}

// SetPrimaryProperty atomically flips the primary flag: exactly one of the
// customer's properties ends up primary.
func (s *StateStore) SetPrimaryProperty(ctx context.Context, customerID, propertyID uuid.UUID) error {
	return s.WithTransaction(ctx, func(tx *StateStore) error {
		var prop structs.Property
		err := tx.db.WithContext(ctx).Clauses(forUpdate()).
			First(&prop, "id = ? AND customer_id = ?", propertyID, customerID).Error
		if err != nil {
			return translateErr(err, "property", propertyID.String())
		}

		err = tx.db.WithContext(ctx).Model(&structs.Property{}).
			Where("customer_id = ? AND is_primary", customerID).
			Update("is_primary", false).Error
		if err != nil {
			return translateErr(err, "property", customerID.String())
		}

		err = tx.db.WithContext(ctx).Model(&structs.Property{}).
			Where("id = ?", propertyID).
			Update("is_primary", true).Error
		return translateErr(err, "property", propertyID.String())
	})
}
