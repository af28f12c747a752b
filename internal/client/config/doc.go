// Package config loads runtime configuration for the mukon CLI.
//
// Sources, later ones winning:
//
//  1. env-default struct tags.
//  2. MUKON_* environment variables.
//  3. An optional YAML or JSON file (--config).
//  4. Persistent command-line flags, applied by the cli package.
//
// Everything the CLI keeps on disk lives under HomeDir: the sealed key
// (key.json), the contacts cache (contacts.db) and nonce state (state.db).
package config
