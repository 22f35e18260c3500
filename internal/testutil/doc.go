// Package testutil provides shared helpers for boarding tests: temporary
// SQLite stores, deterministic reservation id generators and a small
// resource directory fixture.
package testutil
