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

const refreshTokenColumns = `id, user_id, token_hash, expires_at, is_revoked,
	revoked_at, replaced_by_token_hash, created_at, updated_at`

// RefreshTokenRepository handles stored refresh-token records
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(db *database.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: db.Pool}
}

func scanRefreshTokenRow(scanner rowScanner) (*models.RefreshToken, error) {
	var token models.RefreshToken
	var revokedAt *time.Time
	var replacedBy *string

	err := scanner.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt,
		&token.IsRevoked, &revokedAt, &replacedBy,
		&token.CreatedAt, &token.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	token.RevokedAt = revokedAt
	token.ReplacedByTokenHash = replacedBy
	return &token, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	query := fmt.Sprintf(`
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s`, refreshTokenColumns)

	return scanRefreshTokenRow(r.pool.QueryRow(ctx, query, uuid.New().String(), userID, tokenHash, expiresAt))
}

// FindByUserAndHash locates the stored record for a presented token. A miss
// for a structurally valid token is the reuse signal.
func (r *RefreshTokenRepository) FindByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.RefreshToken, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2`, refreshTokenColumns)

	return scanRefreshTokenRow(r.pool.QueryRow(ctx, query, userID, tokenHash))
}

// ConditionalRevoke marks a record revoked and links it to its replacement,
// guarded on is_revoked = false. The guard makes rotation race-safe: of two
// concurrent refreshes with the same token, exactly one wins this update.
func (r *RefreshTokenRepository) ConditionalRevoke(ctx context.Context, tokenHash, replacedByHash string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW(), replaced_by_token_hash = $1, updated_at = NOW()
		WHERE token_hash = $2 AND is_revoked = false`

	result, err := r.pool.Exec(ctx, query, replacedByHash, tokenHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// Revoke marks a single record revoked with no replacement; used on logout.
// Idempotent: a missing or already-revoked record is not an error.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW(), updated_at = NOW()
		WHERE token_hash = $1 AND is_revoked = false`

	_, err := r.pool.Exec(ctx, query, tokenHash)
	return database.MapPostgresError(err)
}

// RevokeAllForUser marks every record for the account revoked. Idempotent:
// already-revoked records keep their original revoked_at.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = true, revoked_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND is_revoked = false`

	_, err := r.pool.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}

// CountActiveForUser reports non-revoked, unexpired records. Backs the
// operator sessions endpoint.
func (r *RefreshTokenRepository) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = false AND expires_at > NOW()`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// PurgeExpiredRevoked removes records past retention: revoked or expired
func (r *RefreshTokenRepository) PurgeExpiredRevoked(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < NOW() - make_interval(secs => $1)
		   OR (is_revoked = true AND revoked_at < NOW() - make_interval(secs => $1))`

	result, err := r.pool.Exec(ctx, query, retention.Seconds())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
