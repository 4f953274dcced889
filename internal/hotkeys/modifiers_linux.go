//go:build linux

package hotkeys

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 in the default modifier layout.
const (
	modAlt   = hotkey.Mod1
	modSuper = hotkey.Mod4
)
