// Package activity carries task activity events (created, updated, deleted)
// from the mutation engine to background consumers. Publishing happens after
// the store commit and is best-effort: a failed publish is logged and the
// mutation stands. Queues are backed by a buffered channel, a Redis list or a
// RabbitMQ queue; the Recorder is the consumer that `serve` runs and is where
// notification delivery attaches.
package activity
