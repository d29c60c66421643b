package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.PaymentSession) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_sessions (
			order_id, token, redirect_url, transaction_id, status, amount,
			currency, version, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING`,
		session.OrderID,
		session.Token,
		session.RedirectURL,
		session.TransactionID,
		session.Status,
		session.Amount,
		session.Currency,
		session.Version,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindSessionByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.PaymentSession, error) {
	var item domain.PaymentSession
	err := db.WithContext(ctx).Raw(
		`SELECT order_id, token, redirect_url, transaction_id, status, amount,
			currency, version, expires_at, created_at, updated_at
		 FROM payment_sessions
		 WHERE order_id = ?
		 LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.OrderID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_sessions
		 SET status = ?,
			 transaction_id = CASE WHEN ? != '' THEN ? ELSE transaction_id END,
			 version = version + 1,
			 updated_at = ?
		 WHERE order_id = ? AND version = ? AND status = ?`,
		t.To,
		t.TransactionID,
		t.TransactionID,
		t.At,
		t.OrderID,
		t.FromVersion,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, record *domain.NotificationRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO gateway_notifications (
			id, order_id, transaction_id, transaction_status, payload,
			received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id, transaction_status) DO NOTHING`,
		record.ID,
		record.OrderID,
		record.TransactionID,
		record.TransactionStatus,
		record.Payload,
		record.ReceivedAt,
		record.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindNotification(ctx context.Context, db *gorm.DB, transactionID, transactionStatus string) (*domain.NotificationRecord, error) {
	var item domain.NotificationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, transaction_id, transaction_status, payload,
			received_at, processed_at
		 FROM gateway_notifications
		 WHERE transaction_id = ? AND transaction_status = ?
		 LIMIT 1`,
		transactionID,
		transactionStatus,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkNotificationProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_notifications
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
