// Package credstore provides persistent storage backends for the Sigen
// credential set.
//
// Three backends with different deployment tradeoffs:
//   - File: local JSON file with atomic writes and secure permissions
//   - Env: read-only record from an environment variable (externally managed)
//   - Keyring: OS-native credential storage (macOS Keychain, Secret Service, etc.)
//
// The token lifecycle needs writable storage (file or keyring); env storage
// only works while the externally supplied credential stays valid.
package credstore
