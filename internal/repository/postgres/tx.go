package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-access/internal/core/port"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxManager implements port.UnitOfWork with a single pgx transaction per call.
type TxManager struct {
	db     txBeginner
	users  *UserRepository
	roles  *RoleRepository
	tokens *TokenRepository
	outbox *OutboxRepository
}

// NewTxManager binds the tenant repositories to a transaction source.
func NewTxManager(db txBeginner, users *UserRepository, roles *RoleRepository, tokens *TokenRepository, outbox *OutboxRepository) *TxManager {
	return &TxManager{db: db, users: users, roles: roles, tokens: tokens, outbox: outbox}
}

// WithinTx commits when fn succeeds and rolls back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) (err error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
	}()

	repos := port.TxRepositories{
		Users:  m.users.WithTx(tx),
		Roles:  m.roles.WithTx(tx),
		Tokens: m.tokens.WithTx(tx),
		Outbox: m.outbox.WithTx(tx),
	}

	if err = fn(ctx, repos); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ port.UnitOfWork = (*TxManager)(nil)
