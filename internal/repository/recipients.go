package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func (r *Repository) GetRecipientsByScheduleID(ctx context.Context, scheduleID int64) ([]domain.Recipient, error) {
	query := `
		SELECT id, email, domain, is_external FROM recipients WHERE schedule_id = $1 ORDER BY id
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := make([]domain.Recipient, 0)
	for rows.Next() {
		recipient := domain.Recipient{ScheduleID: scheduleID}
		if err := rows.Scan(&recipient.ID, &recipient.Email, &recipient.Domain, &recipient.IsExternal); err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recipients, nil
}

func insertRecipients(ctx context.Context, tx *sql.Tx, scheduleID int64, recipients []domain.Recipient) error {
	query := `
		INSERT INTO recipients (schedule_id, email, domain, is_external)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	for i := range recipients {
		recipients[i].ScheduleID = scheduleID
		if err := tx.QueryRowContext(ctx, query, scheduleID, recipients[i].Email, recipients[i].Domain, recipients[i].IsExternal).Scan(&recipients[i].ID); err != nil {
			return err
		}
	}

	return nil
}
