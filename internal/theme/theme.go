package theme

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleCommand   = "command"
)

var Roles = []string{RoleSystem, RoleUser, RoleAssistant, RoleCommand}

var (
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidColor = errors.New("invalid color")
)

// Colors maps the names accepted by setcolor to terminal colours.
var Colors = map[string]lipgloss.Color{
	"red":          "1",
	"green":        "2",
	"yellow":       "3",
	"blue":         "4",
	"magenta":      "5",
	"cyan":         "6",
	"white":        "7",
	"lightred":     "9",
	"lightgreen":   "10",
	"lightyellow":  "11",
	"lightblue":    "12",
	"lightmagenta": "13",
	"lightcyan":    "14",
	"lightwhite":   "15",
	"purple":       "5",
	"pink":         "13",
	"babyblue":     "12",
	"babypink":     "218",
}

type Theme struct {
	mu    sync.RWMutex
	roles map[string]string
}

func Default() *Theme {
	return &Theme{roles: map[string]string{
		RoleSystem:    "yellow",
		RoleUser:      "green",
		RoleAssistant: "blue",
		RoleCommand:   "white",
	}}
}

func ColorNames() []string {
	names := make([]string, 0, len(Colors))
	for n := range Colors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *Theme) Set(role, color string) error {
	role, color = strings.ToLower(role), strings.ToLower(color)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.roles[role]; !ok {
		return fmt.Errorf("%w %q, valid roles: %s", ErrInvalidRole, role, strings.Join(Roles, ", "))
	}
	if _, ok := Colors[color]; !ok {
		return fmt.Errorf("%w %q, valid colors: %s", ErrInvalidColor, color, strings.Join(ColorNames(), ", "))
	}
	t.roles[role] = color
	return nil
}

func (t *Theme) Color(role string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roles[role]
}

// Style returns the style for role; command output is rendered faint.
func (t *Theme) Style(role string) lipgloss.Style {
	st := lipgloss.NewStyle().Foreground(Colors[t.Color(role)])
	if role == RoleCommand {
		st = st.Faint(true)
	}
	return st
}
