//go:build tools

// Package tools pins the code generators run through go generate, so that
// go.mod tracks their versions.
package market_chat

import (
	_ "go.uber.org/mock/mockgen"
)
