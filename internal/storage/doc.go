// Package storage persists tracked items, their subscription tiers,
// per-server channel bindings and locale preferences.
//
// Two drivers exist: "memory" (tests, dev) and "sqlite". Both implement
// Store and behave identically; the memory driver is the reference.
package storage
