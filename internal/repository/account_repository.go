package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/HookRelay/internal/identity"
	"github.com/digkill/HookRelay/internal/models"
)

const mysqlDuplicateEntry = 1062

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `
SELECT uid, email, password_hash, created_at, updated_at
FROM accounts WHERE email = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) FindByUID(ctx context.Context, uid string) (*models.Account, error) {
	const query = `
SELECT uid, email, password_hash, created_at, updated_at
FROM accounts WHERE uid = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, uid))
}

func (r *AccountRepository) scan(row *sql.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.UID, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	const query = `INSERT INTO accounts (uid, email, password_hash) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, account.UID, account.Email, account.PasswordHash); err != nil {
		if isDuplicate(err) {
			return identity.ErrEmailInUse
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdateEmail(ctx context.Context, uid, email string) error {
	const query = `UPDATE accounts SET email = ?, updated_at = NOW() WHERE uid = ?`
	if _, err := r.db.ExecContext(ctx, query, email, uid); err != nil {
		if isDuplicate(err) {
			return identity.ErrEmailInUse
		}
		return fmt.Errorf("update account email: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
