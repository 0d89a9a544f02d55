package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/clinicore/backoffice/internal/repository"
)

// doctorNoOverlapDDL rejects overlapping bookings for the same doctor at the
// storage level. The columns are timestamptz, so the range must be tstzrange;
// it is half-open, so back-to-back appointments do not collide.
const doctorNoOverlapDDL = `ALTER TABLE appointments ADD CONSTRAINT appointments_doctor_no_overlap
	EXCLUDE USING gist (
		doctor_id WITH =,
		tstzrange(start_time, end_time) WITH &&
	) WHERE (status NOT IN ('CANCELLED', 'COMPLETED'))`

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createAppointmentsTable(),
		createNotificationsTable(),
	})

	return m.Migrate()
}

func createAppointmentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_appointments",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AppointmentModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE EXTENSION IF NOT EXISTS btree_gist`,
				doctorNoOverlapDDL,
				`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_start ON appointments (doctor_id, start_time)`,
				`CREATE INDEX IF NOT EXISTS idx_appointments_status_start ON appointments (status, start_time)`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AppointmentModel{})
		},
	}
}

func createNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_idempotency_key ON notifications (idempotency_key) WHERE idempotency_key IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_external_txn ON notifications (external_transaction_id) WHERE external_transaction_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications (updated_at) WHERE status = 'PENDING'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}
