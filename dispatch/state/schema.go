// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"
	"fmt"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// tablesWithUpdatedAt lists every table whose updated_at column refreshes on
// row update via trigger. Snapshot/audit tables are append-only and carry no
// updated_at.
var tablesWithUpdatedAt = []string{
	"customers",
	"leads",
	"properties",
	"service_offerings",
	"staff",
	"staff_availability",
	"jobs",
	"appointments",
	"schedule_waitlist",
	"invoices",
}

// Bootstrap creates or updates the schema: tables from the model structs,
// the updated_at refresh trigger, and the audit-trail FK behavior (RESTRICT
// everywhere except snapshot references, which null out so deleting a staff
// member never erases history).
func (s *StateStore) Bootstrap(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	const triggerFn = `
CREATE OR REPLACE FUNCTION refresh_updated_at() RETURNS trigger AS $$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`
	if err := db.Exec(triggerFn).Error; err != nil {
		return fmt.Errorf("creating updated_at function: %w", err)
	}

	for _, table := range tablesWithUpdatedAt {
		stmt := fmt.Sprintf(`
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_%s_updated_at') THEN
    CREATE TRIGGER trg_%s_updated_at BEFORE UPDATE ON %s
    FOR EACH ROW EXECUTE FUNCTION refresh_updated_at();
  END IF;
END
$$;`, table, table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("creating updated_at trigger for %s: %w", table, err)
		}
	}

	for _, stmt := range fkStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("applying foreign keys: %w", err)
		}
	}

	s.logger.Info("schema bootstrap complete")
	return nil
}

// fkStatements pins referential behavior: RESTRICT by default, SET NULL on
// the reassignment's new-staff reference so audit rows outlive staff rows.
var fkStatements = []string{
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_jobs_customer') THEN
    ALTER TABLE jobs ADD CONSTRAINT fk_jobs_customer
      FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE RESTRICT;
  END IF;
END $$;`,
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_appointments_job') THEN
    ALTER TABLE appointments ADD CONSTRAINT fk_appointments_job
      FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE RESTRICT;
  END IF;
END $$;`,
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_appointments_staff') THEN
    ALTER TABLE appointments ADD CONSTRAINT fk_appointments_staff
      FOREIGN KEY (staff_id) REFERENCES staff(id) ON DELETE RESTRICT;
  END IF;
END $$;`,
	`DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_reassignments_new_staff') THEN
    ALTER TABLE schedule_reassignments ADD CONSTRAINT fk_reassignments_new_staff
      FOREIGN KEY (new_staff_id) REFERENCES staff(id) ON DELETE SET NULL;
  END IF;
END $$;`,
}

func allModels() []interface{} {
	return []interface{}{
		&structs.Customer{},
		&structs.Lead{},
		&structs.Property{},
		&structs.ServiceOffering{},
		&structs.Staff{},
		&structs.StaffAvailability{},
		&structs.Job{},
		&structs.JobStatusHistory{},
		&structs.Appointment{},
		&structs.WaitlistEntry{},
		&structs.Invoice{},
		&structs.ScheduleClearAudit{},
		&structs.ScheduleReassignment{},
		&structs.SentMessage{},
	}
}
