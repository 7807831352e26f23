package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users   *UserRepository
	Roles   *RoleRepository
	Catalog *CatalogRepository
	Tokens  *TokenRepository
	Outbox  *OutboxRepository
	Tx      *TxManager
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, partitions Partitions) *Repositories {
	repos := &Repositories{
		Users:   NewUserRepository(pool, partitions),
		Roles:   NewRoleRepository(pool, partitions),
		Catalog: NewCatalogRepository(pool),
		Tokens:  NewTokenRepository(pool, partitions),
		Outbox:  NewOutboxRepository(pool, partitions),
	}
	repos.Tx = NewTxManager(pool, repos.Users, repos.Roles, repos.Tokens, repos.Outbox)
	return repos
}
