package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyEsc      = "esc"
	KeyEnter    = "enter"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyPane3    = "3"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeySettings = "s"
	KeyRefresh  = "ctrl+r"

	KeyNewAgent    = "n"
	KeyRunSandbox  = "r"
	KeyRunLive     = "R"
	KeyDeleteAgent = "d"
	KeyInstall     = "i"
)

// HelpView returns the help bar for the focused pane.
func HelpView(focused PaneID) string {
	switch focused {
	case PaneChat:
		return StyleHelp.Render("enter: send | tab: next pane | ctrl+r: refresh status | ctrl+c: quit")
	case PaneAgents:
		return StyleHelp.Render("j/k: select | n: new | r: run (sandbox) | R: run live | d: delete | i: install help | s: settings | q: quit")
	default:
		return StyleHelp.Render("j/k: scroll | tab: next pane | 1/2/3: jump | s: settings | q: quit")
	}
}
