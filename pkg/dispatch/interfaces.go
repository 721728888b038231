// Package dispatch defines the contracts between the request orchestration
// and the components that touch the network: the device directory, the
// credential minter and the push gateway dispatcher.
package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// Directory is the narrow facade over the external store. This service only
// reads tokens and memberships and deletes tokens; it never creates them.
type Directory interface {
	// ListTokens returns every live device token registered for the user.
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)

	// DeleteTokens removes the given tokens, keyed by token value. The
	// userID scopes the delete and lets caching layers invalidate.
	DeleteTokens(ctx context.Context, userID uuid.UUID, tokens []string) error

	// Membership returns the membership row for (householdID, userID), or
	// nil when no row exists.
	Membership(ctx context.Context, householdID, userID uuid.UUID) (*notify.Membership, error)
}

// TokenMinter produces a short-lived bearer token for the push gateway. The
// token is used for exactly one request batch and never cached.
type TokenMinter interface {
	Mint(ctx context.Context) (string, error)
}

// Dispatcher fans a validated request out to a set of device tokens and
// returns one typed outcome per token. Individual device failures are
// reported in the outcomes, not as an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, accessToken string, req *notify.Request, tokens []string) ([]notify.Delivery, error)
}
