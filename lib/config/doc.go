// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the seed server's YAML configuration.
//
// Configuration comes from a single file named by the SEED_CONFIG
// environment variable or a --config flag. There is no automatic
// discovery: one file, explicitly named, is the whole configuration.
// The file may carry environment sections (development, staging,
// production) whose values override the base when the declared
// environment matches, and path values may use ${VAR} and
// ${VAR:-default} expansion.
//
// Flag values set on the command line take precedence over the file;
// file values take precedence over built-in defaults.
package config
