// Package dedupe provides a TTL cache for deduplicating webhook deliveries.
//
// Webhook providers retry deliveries on timeouts, so the ingress checks the
// delivery ID against this cache before triggering jobs. Entries expire
// after a TTL and the cache is bounded with oldest-first eviction.
package dedupe
