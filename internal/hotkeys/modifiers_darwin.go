//go:build darwin

package hotkeys

import "golang.design/x/hotkey"

const (
	modAlt   = hotkey.ModOption
	modSuper = hotkey.ModCmd
)
