// internal/app/bootstrap/unavailable.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
)

// errNoIdentityProvider is returned by on-demand syncs when no API key is
// configured.
var errNoIdentityProvider = errors.New("identity provider not configured")

type unavailableSyncer struct{}

func (unavailableSyncer) SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error) {
	return models.SyncResult{Errors: []string{}}, errNoIdentityProvider
}
