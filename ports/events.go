package ports

import "context"

// EventPublisher notifies other instances about session terminations.
type EventPublisher interface {
	PublishLogout(ctx context.Context, identityID string, sessionIDs []string) error
	PublishTheftDetected(ctx context.Context, identityID, sessionID string, revoked []string) error
}
