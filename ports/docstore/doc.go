// Package docstore defines the port to a hierarchical document store with
// callback based reads and live listeners.
//
// Addresses are slash separated: documents live at even depths
// ("users/alice"), collections at odd depths ("users", "users/alice/posts").
// Implementations: [MemStore] for tests and development, and the NATS
// JetStream KV adapter in adapters/nats.
package docstore
