// Package poll composes the group's recurring poll and reminder content and
// executes fired actions against the messaging adapter.
package poll
