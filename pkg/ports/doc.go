// Package ports defines the driven-side interfaces of the sync layer:
// outbound message senders, encryption key providers, and persistence
// stores. Adapters implementing them live under pkg/adapters.
package ports
