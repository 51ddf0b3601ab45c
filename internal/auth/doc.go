// Package auth fetches short-lived realtime session credentials from the
// backend. The backend holds the long-lived provider key; the bridge only
// ever sees ephemeral grants scoped to one call.
package auth
