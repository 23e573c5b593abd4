package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmorrow/taskvault/internal/database"
	"github.com/lmorrow/taskvault/internal/models"
)

const accountColumns = `id, name, email, password_hash, role, provider, provider_id,
	avatar_key, avatar_url, avatar_size, email_verified, last_login_at,
	failed_login_attempts, lock_until, is_deleted, deleted_at, reactivate_at,
	created_at, updated_at`

type AccountRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash, providerID, avatarKey, avatarURL *string
	var avatarSize *int64
	var lastLoginAt, lockUntil, deletedAt, reactivateAt *time.Time

	err := scanner.Scan(
		&account.ID, &account.Name, &account.Email, &passwordHash,
		&account.Role, &account.Provider, &providerID,
		&avatarKey, &avatarURL, &avatarSize,
		&account.EmailVerified, &lastLoginAt,
		&account.FailedLoginAttempts, &lockUntil,
		&account.IsDeleted, &deletedAt, &reactivateAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}
	account.ProviderID = providerID
	if avatarKey != nil && avatarURL != nil {
		avatar := &models.Avatar{Key: *avatarKey, URL: *avatarURL}
		if avatarSize != nil {
			avatar.Size = *avatarSize
		}
		account.Avatar = avatar
	}
	account.LastLoginAt = lastLoginAt
	account.LockUntil = lockUntil
	account.DeletedAt = deletedAt
	account.ReactivateAt = reactivateAt

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE email = $1`, accountColumns)
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = models.RoleUser
	}
	if account.Provider == "" {
		account.Provider = models.ProviderLocal
	}

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	var avatarKey, avatarURL *string
	var avatarSize *int64
	if account.Avatar != nil {
		avatarKey = &account.Avatar.Key
		avatarURL = &account.Avatar.URL
		avatarSize = &account.Avatar.Size
	}

	query := fmt.Sprintf(`
		INSERT INTO accounts (id, name, email, password_hash, role, provider, provider_id,
			avatar_key, avatar_url, avatar_size, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING %s`, accountColumns)

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Name, account.Email, passwordHash,
		account.Role, account.Provider, account.ProviderID,
		avatarKey, avatarURL, avatarSize,
		account.EmailVerified, account.CreatedAt, account.UpdatedAt,
	))
}

// UpdateProfile mutates the explicitly enumerated mutable profile fields:
// name and avatar. Nothing else in the profile is writable through this path.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, name string, avatar *models.Avatar) (*models.Account, error) {
	var avatarKey, avatarURL *string
	var avatarSize *int64
	if avatar != nil {
		avatarKey = &avatar.Key
		avatarURL = &avatar.URL
		avatarSize = &avatar.Size
	}

	query := fmt.Sprintf(`
		UPDATE accounts
		SET name = COALESCE(NULLIF($1, ''), name),
			avatar_key = COALESCE($2, avatar_key),
			avatar_url = COALESCE($3, avatar_url),
			avatar_size = COALESCE($4, avatar_size),
			updated_at = $5
		WHERE id = $6
		RETURNING %s`, accountColumns)

	return scanAccountRow(r.pool.QueryRow(ctx, query, name, avatarKey, avatarURL, avatarSize, time.Now(), id))
}

// UpdatePassword replaces the stored password hash
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkEmailVerified flips email_verified; used by the first successful OTP
// sign-in, which proves mailbox control.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE accounts SET email_verified = true, updated_at = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, time.Now(), id)
	return database.MapPostgresError(err)
}

// RecordLogin sets last_login_at and clears the lock counters in one write
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE accounts
		SET last_login_at = $1, failed_login_attempts = 0, lock_until = NULL, updated_at = $1
		WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, at, id)
	return database.MapPostgresError(err)
}

// IncrementFailedLogins bumps the failure counter and, once it reaches
// maxAttempts, opens a lock window ending at lockUntil. Returns the new count.
func (r *AccountRepository) IncrementFailedLogins(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
			lock_until = CASE WHEN failed_login_attempts + 1 >= $1 THEN $2 ELSE lock_until END,
			updated_at = NOW()
		WHERE id = $3
		RETURNING failed_login_attempts`

	var attempts int
	if err := r.pool.QueryRow(ctx, query, maxAttempts, lockUntil, id).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// SoftDelete flags the account deleted and stamps the reactivation cooldown
func (r *AccountRepository) SoftDelete(ctx context.Context, id string, deletedAt, reactivateAt time.Time) error {
	query := `
		UPDATE accounts
		SET is_deleted = true, deleted_at = $1, reactivate_at = $2, updated_at = $1
		WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, deletedAt, reactivateAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Reactivate clears the deletion fields
func (r *AccountRepository) Reactivate(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET is_deleted = false, deleted_at = NULL, reactivate_at = NULL, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AttachProvider links a federated identity and refreshes the avatar on an
// existing account during OAuth login.
func (r *AccountRepository) AttachProvider(ctx context.Context, id, provider, providerID string, avatarURL *string) error {
	query := `
		UPDATE accounts
		SET provider = $1, provider_id = $2, email_verified = true,
			avatar_url = COALESCE($3, avatar_url), updated_at = NOW()
		WHERE id = $4`

	_, err := r.pool.Exec(ctx, query, provider, providerID, avatarURL, id)
	return database.MapPostgresError(err)
}

// Delete removes the account row permanently, in one transaction with the
// passcodes issued to its email. Todos and refresh tokens key on the account
// id and go with it via ON DELETE CASCADE. There are no further writes to
// the entity.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM one_time_passcodes
			WHERE email = (SELECT email FROM accounts WHERE id = $1)`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}

		result, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
