// Package store persists the small durable state the scheduler core needs
// across restarts: the latest posted poll message per kind, and fired
// markers for occurrence dedup.
package store
