// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, runtime metrics and debug introspection for the
// channel and selector layers.
//
// Provides concurrent-safe state handling primitives including:
//   - TOML configuration with snapshot reads and file-watch hot reload
//   - Package-wide structured logger (logrus)
//   - Counter metrics with snapshot export
//   - Debug probe registration and state dumps
package control
