package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SpendLimit enforces an optional per-user daily credit cap on
// generation routes. Users with no cap configured pass through.
func SpendLimit(pool *pgxpool.Pool, creditsPerRequest int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromCtx(r.Context())
			if user == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			if user.DailyCreditCap != nil {
				spent, err := dailySpendFn(r.Context(), pool, user.ID)
				if err != nil {
					http.Error(w, `{"error":"failed to check daily spend"}`, http.StatusInternalServerError)
					return
				}
				if spent+creditsPerRequest > *user.DailyCreditCap {
					http.Error(w, fmt.Sprintf(`{"error":"daily credit cap reached (%d of %d used)"}`, spent, *user.DailyCreditCap), http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// dailySpendFn computes credits spent today. Tests replace this to
// avoid hitting a real database.
var dailySpendFn = defaultDailySpend

// defaultDailySpend sums usage transactions for the user today (UTC).
// Usage rows carry negative amounts, refunds add back, so summing both
// kinds yields net spend.
func defaultDailySpend(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) (int, error) {
	var total int
	err := pool.QueryRow(ctx, `
		SELECT COALESCE(-SUM(amount), 0)
		FROM credit_transactions
		WHERE user_id = $1 AND kind IN ('usage', 'refund')
		  AND created_at >= CURRENT_DATE
	`, userID).Scan(&total)
	return total, err
}
