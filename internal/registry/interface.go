package registry

import "context"

// PresenceMirror publishes the reachable-user set to shared state other
// services can read. Best-effort only: the in-process registry is the
// source of truth and the mirror lagging or failing never affects it.
type PresenceMirror interface {
	SetOnline(ctx context.Context, identifier string) error
	SetOffline(ctx context.Context, identifier string) error
	StartHeartbeat(ctx context.Context)
	StopHeartbeat()
	Close() error
}

// Disabled is used when no Redis address is configured.
type Disabled struct{}

func NewDisabled() Disabled { return Disabled{} }

func (Disabled) SetOnline(context.Context, string) error  { return nil }
func (Disabled) SetOffline(context.Context, string) error { return nil }
func (Disabled) StartHeartbeat(context.Context)           {}
func (Disabled) StopHeartbeat()                           {}
func (Disabled) Close() error                             { return nil }
