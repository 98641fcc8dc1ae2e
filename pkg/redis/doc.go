// Package redis connects to Redis with go-redis and exposes a health check.
//
// The client backs the session metadata cache and the pending profile
// update slot when those are configured for Redis:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := redis.Healthcheck(client)(ctx); err != nil {
//	    // redis is not healthy
//	}
package redis
