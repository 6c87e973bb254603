// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// seed-server is the chat backend: WebSocket transport, session core,
// SQLite message store, and the local ops socket, wired from one YAML
// configuration file.
//
// Configuration comes from --config (or the SEED_CONFIG environment
// variable); --listen and --db override the file for local runs. The
// server runs until SIGINT or SIGTERM, then drains live sessions
// within the configured grace period and closes the store.
package main
