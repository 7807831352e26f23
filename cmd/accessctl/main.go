package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/infra/audit"
	"github.com/arklim/tenant-access/internal/infra/config"
	"github.com/arklim/tenant-access/internal/infra/database"
	"github.com/arklim/tenant-access/internal/infra/logger"
	postgresrepo "github.com/arklim/tenant-access/internal/repository/postgres"
	"github.com/arklim/tenant-access/internal/usecase"
)

const operatorID = "accessctl"

func main() {
	_ = godotenv.Load()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "accessctl",
		Usage: "Operator tooling for the tenant access service",
		Commands: []*cli.Command{
			migrateCommand(),
			catalogCommand(),
			roleCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.Run(ctx, args); err != nil {
		log.Fatal(err)
	}
}

func migrateCommand() *cli.Command {
	run := func(command database.MigrationCommand) cli.ActionFunc {
		return func(ctx context.Context, _ *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := sql.Open("pgx", cfg.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			return database.Migrate(ctx, db, command)
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or inspect schema migrations",
		Commands: []*cli.Command{
			{Name: "up", Usage: "apply pending migrations", Action: run(database.MigrateUp)},
			{Name: "down", Usage: "roll back the latest migration", Action: run(database.MigrateDown)},
			{Name: "status", Usage: "print migration status", Action: run(database.MigrateStatus)},
		},
	}
}

func catalogCommand() *cli.Command {
	systemFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "system", Value: string(domain.TenantPublic), Usage: "owning tag: PUBLIC, SPD or SIS"}
	}

	return &cli.Command{
		Name:  "catalog",
		Usage: "Provision modules, actions and applicability edges",
		Commands: []*cli.Command{
			{
				Name:  "module",
				Usage: "register a module",
				Flags: []cli.Flag{
					systemFlag(),
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "path", Required: true, Usage: "route path such as /reports"},
					&cli.StringFlag{Name: "description"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCatalog(ctx, c, func(svc *usecase.CatalogService, tag domain.Tenant) error {
						input := usecase.CreateModuleInput{Name: c.String("name"), Path: c.String("path")}
						if d := strings.TrimSpace(c.String("description")); d != "" {
							input.Description = &d
						}
						module, err := svc.CreateModule(ctx, tag, operator(), input)
						if err != nil {
							return err
						}
						fmt.Printf("module %s %s (%s)\n", module.ID, module.Path, module.System)
						return nil
					})
				},
			},
			{
				Name:  "action",
				Usage: "register an action code",
				Flags: []cli.Flag{
					systemFlag(),
					&cli.StringFlag{Name: "code", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCatalog(ctx, c, func(svc *usecase.CatalogService, tag domain.Tenant) error {
						action, err := svc.CreateAction(ctx, tag, operator(), usecase.ActionInput{Code: c.String("code"), Name: c.String("name")})
						if err != nil {
							return err
						}
						fmt.Printf("action %s %s (%s)\n", action.ID, action.Code, action.System)
						return nil
					})
				},
			},
			{
				Name:  "link",
				Usage: "declare that an action applies to a module",
				Flags: []cli.Flag{
					systemFlag(),
					&cli.StringFlag{Name: "module", Required: true},
					&cli.StringFlag{Name: "action", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withCatalog(ctx, c, func(svc *usecase.CatalogService, tag domain.Tenant) error {
						perm, err := svc.LinkPermission(ctx, tag, operator(), c.String("module"), c.String("action"))
						if err != nil {
							return err
						}
						fmt.Printf("permission %s\n", perm.ID)
						return nil
					})
				},
			},
		},
	}
}

func roleCommand() *cli.Command {
	tenantFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "tenant", Required: true, Usage: "SPD or SIS"}
	}

	return &cli.Command{
		Name:  "role",
		Usage: "Bootstrap tenant roles",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a role with an initial permission set",
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.BoolFlag{Name: "default", Usage: "make this the tenant default role"},
					&cli.StringSliceFlag{Name: "permission", Usage: "catalog permission id, repeatable"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRoles(ctx, c, func(svc *usecase.RoleService, tenant domain.Tenant) error {
						input := usecase.CreateRoleInput{
							Name:          c.String("name"),
							IsDefault:     c.Bool("default"),
							PermissionIDs: c.StringSlice("permission"),
						}
						if d := strings.TrimSpace(c.String("description")); d != "" {
							input.Description = &d
						}
						role, err := svc.CreateRole(ctx, tenant, operator(), input)
						if err != nil {
							return err
						}
						fmt.Printf("role %s %s default=%t\n", role.ID, role.Name, role.IsDefault)
						return nil
					})
				},
			},
			{
				Name:  "assign",
				Usage: "assign a role to a user",
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "role", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRoles(ctx, c, func(svc *usecase.RoleService, tenant domain.Tenant) error {
						if err := svc.AssignRole(ctx, tenant, operator(), c.String("user"), c.String("role")); err != nil {
							return err
						}
						fmt.Printf("assigned %s to %s\n", c.String("role"), c.String("user"))
						return nil
					})
				},
			},
		},
	}
}

type environment struct {
	cfg   *config.AppConfig
	log   *zap.Logger
	repos *postgresrepo.Repositories
	close func()
}

func open(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	partitions, err := postgresrepo.NewPartitions(map[domain.Tenant]string{
		domain.TenantSPD: cfg.Postgres.SPDSchema,
		domain.TenantSIS: cfg.Postgres.SISSchema,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &environment{
		cfg:   cfg,
		log:   log,
		repos: postgresrepo.NewRepositories(pool, partitions),
		close: func() {
			pool.Close()
			_ = log.Sync()
		},
	}, nil
}

func withCatalog(ctx context.Context, c *cli.Command, fn func(*usecase.CatalogService, domain.Tenant) error) error {
	tag, err := domain.ParseCatalogTag(c.String("system"))
	if err != nil {
		return err
	}
	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	svc := usecase.NewCatalogService(env.repos.Catalog, env.log).WithAudit(audit.NewZapSink(env.log))
	return fn(svc, tag)
}

func withRoles(ctx context.Context, c *cli.Command, fn func(*usecase.RoleService, domain.Tenant) error) error {
	tenant, err := domain.ParseTenant(c.String("tenant"))
	if err != nil {
		return err
	}
	env, err := open(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	outbox := usecase.NewEventOutbox(env.cfg.App.Name, env.cfg.App.Env)
	svc := usecase.NewRoleService(env.repos.Tx, env.repos.Roles, env.repos.Catalog, outbox, env.log).
		WithAudit(audit.NewZapSink(env.log))
	return fn(svc, tenant)
}

func operator() domain.Actor {
	return domain.Actor{UserID: operatorID, CorrelationID: uuid.NewString()}
}
