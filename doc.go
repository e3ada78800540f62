// Package txd and its sub-packages implement a backend service to dispatch value transfers to multiple
// blockchains and reconcile their statuses.
/*
txd provides a dispatch microservice (package dispatcher) that implements a RESTful API for user requests such as
checking the balance of an address, estimating fees, sending transactions to the configured chains and querying
the reconciled status of submitted transactions.

Architecture

Every configured chain belongs to one of three families: account chains are nonce ordered and signed locally,
resource chains meter execution with bandwidth and energy, and utxo chains delegate transaction construction to
the provider. The dispatch layer (package lib/dispatch) implements one dispatcher per family behind a common
interface, so adding a chain of a known family is only configuration.

Transaction ordering on account chains is handled by a nonce arbiter (package lib/nonce) that serializes
allocations per sender and reconciles a short-lived local cache with the pending count reported by the chain. The
cache backend is in-memory by default and can be switched to redis for multi-instance deployments.

Transfers that fail with a transient provider error are parked in the retry queue (package lib/queue) and
replayed with exponential backoff up to a configured attempt budget. Clients can inspect and force-retry queue
entries through the API.

Status providers push webhook deliveries to the service. Deliveries are authenticated with an HMAC over the raw
body, normalized from each provider's schema (package lib/reconcile) and upserted into the status store keyed by
transaction hash, so redelivered and reordered events converge on the latest observation. Each reconciled status
is also published to a message broker (package lib/msg) for any consumer that wants real-time eventing. The
status store is layered (package lib/store) behind a database product agnostic interface with in-memory, MongoDB
and PostgreSQL implementations.

Signing key material never rests in the service: clients submit it encrypted to the service's age identity and it
is decrypted only for the lifetime of one dispatch.

The microservice can also be monitored via a Prometheus API by setting the flag "-m" at startup.

The dispatcher can be started running cmd/txd/main.go. Configuration is read from a JSON file or environment
variables (package lib/config).
*/
package txd
