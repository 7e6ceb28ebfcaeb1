// Package credential keeps the single delegated calendar credential valid.
//
// One Credential exists per deployment, stored under DefaultID. A Session
// loads it on every use and refreshes it in place once it has expired. The
// Session is passed explicitly to whatever needs tokens; there is no
// process-wide credential state.
//
// Storage backends:
//   - FileStore: a 0600 JSON file, the default for single-host deployments
//   - RedisStore: go-redis, for deployments that run several API replicas
//   - TokenStoreAdapter: any mcp-oauth storage.TokenStore (memory for dev)
//
// Concurrent refreshes are not serialized. Two requests that both observe an
// expired credential both refresh and the last write wins; the provider's
// refresh endpoint is idempotent per refresh token.
package credential
