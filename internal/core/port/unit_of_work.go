package port

import "context"

// TxRepositories are the repositories bound to a single transaction.
type TxRepositories struct {
	Users  UserRepository
	Roles  RoleRepository
	Tokens TokenRepository
	Outbox OutboxWriter
}

// UnitOfWork runs fn atomically. Returning an error from fn rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
