// Package pg connects to PostgreSQL through a pgx/v5 pool and applies the
// embedded goose migrations that create the profiles and usage_logs tables.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors for the stores
// built on top of the pool.
package pg
