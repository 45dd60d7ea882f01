// Package redis implements store.Store on go-redis. Entries are stored as
// Hashes, each state keeps a Sorted Set of entry ids scored by insertion
// time, and state changes form one Sorted Set scored by change time so
// stats read a single range.
//
// The caller owns the Redis client lifecycle and redis never closes it.
// Pass the client through the constructor:
//
//	import (
//	    goredis "github.com/redis/go-redis/v9"
//	    redisstore "github.com/xraph/jobqueue/store/redis"
//	)
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	store := redisstore.New(client)
//	if err := store.Ping(ctx); err != nil { ... }
package redis
