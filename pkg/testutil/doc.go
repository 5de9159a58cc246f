// Package testutil provides helpers for filesystem-heavy tests: temporary
// trees, symlinks, assertions on staged output, and synthetic ELF images
// with controllable dynamic sections.
package testutil
