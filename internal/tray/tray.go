package tray

import (
	"fmt"
	"log/slog"
	"sync"

	"fyne.io/systray"

	"github.com/voxlabs/voxd/internal/protocol"
)

// Callbacks are invoked from the tray's menu handler goroutine.
type Callbacks struct {
	OnStartListening func()
	OnStopListening  func()
	OnClearJournal   func()
	OnQuit           func()
}

// App is the system tray indicator. It renders pipeline status as icon
// color and exposes the listener controls as menu items. It observes the
// pipeline through Update and never drives it directly.
type App struct {
	callbacks Callbacks
	log       *slog.Logger

	mu        sync.Mutex
	listening bool

	menuStatus *systray.MenuItem
	menuStart  *systray.MenuItem
	menuStop   *systray.MenuItem
	menuClear  *systray.MenuItem
	menuQuit   *systray.MenuItem
}

func New(callbacks Callbacks, log *slog.Logger) *App {
	return &App{callbacks: callbacks, log: log}
}

// Run enters the tray main loop. Blocks until Quit; most platforms
// require this to run on the main thread.
func (a *App) Run() {
	systray.Run(a.onReady, func() {})
}

// Quit exits the tray main loop.
func (a *App) Quit() {
	systray.Quit()
}

func (a *App) onReady() {
	systray.SetIcon(statusIcon("idle"))
	systray.SetTooltip("voxd dictation")

	a.menuStatus = systray.AddMenuItem("Status: idle", "Current pipeline status")
	a.menuStatus.Disable()

	systray.AddSeparator()
	a.menuStart = systray.AddMenuItem("Start listening", "Arm the dictation hotkey")
	a.menuStop = systray.AddMenuItem("Stop listening", "Disarm the dictation hotkey")
	a.menuStop.Disable()

	systray.AddSeparator()
	a.menuClear = systray.AddMenuItem("Clear journal", "Delete all journal entries")

	systray.AddSeparator()
	a.menuQuit = systray.AddMenuItem("Quit", "Exit voxd")

	go a.handleClicks()
}

func (a *App) handleClicks() {
	for {
		select {
		case <-a.menuStart.ClickedCh:
			if a.callbacks.OnStartListening != nil {
				a.callbacks.OnStartListening()
			}
		case <-a.menuStop.ClickedCh:
			if a.callbacks.OnStopListening != nil {
				a.callbacks.OnStopListening()
			}
		case <-a.menuClear.ClickedCh:
			if a.callbacks.OnClearJournal != nil {
				a.callbacks.OnClearJournal()
			}
		case <-a.menuQuit.ClickedCh:
			if a.callbacks.OnQuit != nil {
				a.callbacks.OnQuit()
			}
			systray.Quit()
			return
		}
	}
}

// Update applies one pipeline status event to the indicator.
func (a *App) Update(u protocol.StatusUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.menuStatus == nil {
		return
	}

	label := u.Status
	if u.Source == "file" && u.Total > 0 {
		label = fmt.Sprintf("%s %d/%d", u.Status, u.Completed, u.Total)
	}
	a.menuStatus.SetTitle("Status: " + label)
	systray.SetIcon(statusIcon(u.Status))

	switch u.Status {
	case "idle":
		a.listening = false
	case "listening":
		a.listening = true
	}
	if a.listening {
		a.menuStart.Disable()
		a.menuStop.Enable()
	} else {
		a.menuStart.Enable()
		a.menuStop.Disable()
	}
}
