// Package redis builds the shared go-redis client used by the data source
// cache, the Redis conversation log and the Redis activity queue.
package redis
