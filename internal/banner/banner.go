package banner

import (
	"github.com/charmbracelet/lipgloss"

	"inferload/internal/sink"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(sink.ColorBanner).
		Bold(true)

	ascii := `
    ____      ____           __                    __
   /  _/___  / __/__  ______/ /   ____  ____ _____/ /
   / // __ \/ /_/ _ \/ ___// /   / __ \/ __ '/ __  /
 _/ // / / / __/  __/ /   / /___/ /_/ / /_/ / /_/ /
/___/_/ /_/_/  \___/_/   /_____/\____/\__,_/\__,_/   `

	return "\n" + style.Render(ascii) + "\n"
}
