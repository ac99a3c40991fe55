// Package res contains various resources embedded within sntrack that are
// used elsewhere.
package res

import (
	_ "embed"
)

// DefaultConfig contains the example configuration.
//
//go:embed default.toml
var DefaultConfig []byte
