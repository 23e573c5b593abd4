package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmorrow/taskvault/internal/database"
	"github.com/lmorrow/taskvault/internal/models"
)

const otpColumns = `id, email, type, code_hash, expires_at, next_resend_at,
	is_used, used_at, attempts, max_attempts, created_at, updated_at`

// OtpRepository handles one-time passcode data access
type OtpRepository struct {
	pool *pgxpool.Pool
}

func NewOtpRepository(db *database.DB) *OtpRepository {
	return &OtpRepository{pool: db.Pool}
}

func scanOtpRow(scanner rowScanner) (*models.OneTimePasscode, error) {
	var otp models.OneTimePasscode
	var usedAt *time.Time

	err := scanner.Scan(
		&otp.ID, &otp.Email, &otp.Type, &otp.CodeHash,
		&otp.ExpiresAt, &otp.NextResendAt,
		&otp.IsUsed, &usedAt, &otp.Attempts, &otp.MaxAttempts,
		&otp.CreatedAt, &otp.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	otp.UsedAt = usedAt
	return &otp, nil
}

func (r *OtpRepository) Create(ctx context.Context, otp *models.OneTimePasscode) (*models.OneTimePasscode, error) {
	otp.ID = uuid.New().String()

	now := time.Now()
	otp.CreatedAt = now
	otp.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO one_time_passcodes (id, email, type, code_hash, expires_at,
			next_resend_at, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s`, otpColumns)

	return scanOtpRow(r.pool.QueryRow(ctx, query,
		otp.ID, otp.Email, otp.Type, otp.CodeHash, otp.ExpiresAt,
		otp.NextResendAt, otp.Attempts, otp.MaxAttempts, otp.CreatedAt, otp.UpdatedAt,
	))
}

// FindLatest returns the most recently created passcode for (email, type)
// regardless of state; used for the resend throttle check.
func (r *OtpRepository) FindLatest(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM one_time_passcodes
		WHERE email = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1`, otpColumns)

	return scanOtpRow(r.pool.QueryRow(ctx, query, email, otpType))
}

// FindLatestPending returns the newest unused, unexpired passcode for
// (email, type); verification always targets this record.
func (r *OtpRepository) FindLatestPending(ctx context.Context, email, otpType string) (*models.OneTimePasscode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM one_time_passcodes
		WHERE email = $1 AND type = $2 AND is_used = false AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`, otpColumns)

	return scanOtpRow(r.pool.QueryRow(ctx, query, email, otpType))
}

// IncrementAttempts bumps the failure counter. This write is never rolled
// back by the surrounding verification; the attempt must count even when the
// verification call fails.
func (r *OtpRepository) IncrementAttempts(ctx context.Context, id string) error {
	query := `UPDATE one_time_passcodes SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkUsed flips is_used irreversibly; only unused records can flip
func (r *OtpRepository) MarkUsed(ctx context.Context, id string) error {
	query := `
		UPDATE one_time_passcodes
		SET is_used = true, used_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_used = false`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PurgeExpiredUsed removes passcodes past their retention: anything expired
// and anything already consumed.
func (r *OtpRepository) PurgeExpiredUsed(ctx context.Context) (int64, error) {
	query := `DELETE FROM one_time_passcodes WHERE expires_at < NOW() OR is_used = true`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteByEmail removes every passcode for an address. Called after a
// successful verification so no sibling code stays redeemable.
func (r *OtpRepository) DeleteByEmail(ctx context.Context, email string) error {
	query := `DELETE FROM one_time_passcodes WHERE email = $1`

	_, err := r.pool.Exec(ctx, query, email)
	return database.MapPostgresError(err)
}
