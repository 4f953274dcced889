package hotkeys

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.design/x/hotkey"

	"github.com/voxlabs/voxd/internal/config"
)

// Listener registers one system-wide hotkey and forwards key-down events.
// Registration is global to the desktop session, so only one Listener
// should exist per process.
type Listener struct {
	hk      *hotkey.Hotkey
	log     *slog.Logger
	presses chan struct{}
}

// New parses the configured binding and registers it with the window
// system. Returns an error when the combination is unknown or the desktop
// refuses the registration.
func New(cfg config.HotkeyConfig, log *slog.Logger) (*Listener, error) {
	mods, err := parseModifiers(cfg.Modifiers)
	if err != nil {
		return nil, err
	}
	key, err := parseKey(cfg.Key)
	if err != nil {
		return nil, err
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register hotkey %s+%s: %w",
			strings.Join(cfg.Modifiers, "+"), cfg.Key, err)
	}

	l := &Listener{hk: hk, log: log, presses: make(chan struct{}, 4)}
	go l.forward()

	log.Info("hotkey registered",
		slog.String("modifiers", strings.Join(cfg.Modifiers, "+")),
		slog.String("key", cfg.Key))
	return l, nil
}

// Presses delivers one value per key-down. The channel is buffered; a
// press arriving while the consumer is busy is never lost unless the
// buffer overflows.
func (l *Listener) Presses() <-chan struct{} {
	return l.presses
}

func (l *Listener) forward() {
	for range l.hk.Keydown() {
		select {
		case l.presses <- struct{}{}:
		default:
			l.log.Warn("hotkey press dropped, consumer behind")
		}
	}
	close(l.presses)
}

// Close unregisters the hotkey. The Presses channel closes once the
// window system stops delivering events.
func (l *Listener) Close() error {
	return l.hk.Unregister()
}

func parseModifiers(names []string) ([]hotkey.Modifier, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("hotkey needs at least one modifier")
	}
	mods := make([]hotkey.Modifier, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt", "option":
			mods = append(mods, modAlt)
		case "super", "cmd", "meta", "win":
			mods = append(mods, modSuper)
		default:
			return nil, fmt.Errorf("unknown hotkey modifier %q", name)
		}
	}
	return mods, nil
}

func parseKey(name string) (hotkey.Key, error) {
	keys := map[string]hotkey.Key{
		"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
		"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
		"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
		"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
		"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
		"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
		"y": hotkey.KeyY, "z": hotkey.KeyZ,
		"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
		"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
		"8": hotkey.Key8, "9": hotkey.Key9,
		"space":  hotkey.KeySpace,
		"return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
		"escape": hotkey.KeyEscape, "esc": hotkey.KeyEscape,
		"tab": hotkey.KeyTab,
		"f1":  hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3,
		"f4": hotkey.KeyF4, "f5": hotkey.KeyF5, "f6": hotkey.KeyF6,
		"f7": hotkey.KeyF7, "f8": hotkey.KeyF8, "f9": hotkey.KeyF9,
		"f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
	}
	key, ok := keys[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown hotkey key %q", name)
	}
	return key, nil
}
