package middleware

// contextKey keeps middleware values from colliding with handler keys.
type contextKey string

const (
	// UserIDKey holds the authenticated caller's user ID (string).
	UserIDKey contextKey = "userID"
	// IsAdminKey is set by RequireAdmin once the caller is known to be an admin.
	IsAdminKey contextKey = "isAdmin"
)
