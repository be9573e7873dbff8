// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// Authenticate verifies a staff login. Lookup misses and password mismatches
// both return a validation error so callers cannot distinguish them.
func (c *Core) Authenticate(ctx context.Context, email, password string) (*structs.Staff, error) {
	staff, err := c.store.StaffByEmail(ctx, email)
	if err != nil {
		if structs.IsKind(err, structs.ErrKindNotFound) {
			return nil, structs.NewErrValidation("bad_credentials", "invalid credentials")
		}
		return nil, err
	}
	if !staff.IsActive {
		return nil, structs.NewErrValidation("bad_credentials", "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return nil, structs.NewErrValidation("bad_credentials", "invalid credentials")
	}
	return staff, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
