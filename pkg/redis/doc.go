// Package redis connects to a Redis server with go-redis.
//
// Config is populated from REDIS_* environment variables via
// github.com/caarlos0/env:
//
//	var cfg redis.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Connect retries the initial ping so services tolerate Redis starting
// after them.
package redis
