package domain

import "strings"

// Signal is the reaction a user adds to or removes from a group message.
type Signal string

const (
	SignalSelectTank   Signal = "SELECT_TANK"
	SignalSelectHealer Signal = "SELECT_HEALER"
	SignalSelectDPS    Signal = "SELECT_DPS"
	SignalClear        Signal = "CLEAR"
	SignalAcknowledge  Signal = "ACKNOWLEDGE"
)

// SelectionSignals are the signals attached to every new group message.
var SelectionSignals = []Signal{SignalSelectTank, SignalSelectHealer, SignalSelectDPS, SignalClear}

var signalEmoji = map[Signal]string{
	SignalSelectTank:   "🛡️",
	SignalSelectHealer: "💚",
	SignalSelectDPS:    "⚔️",
	SignalClear:        "❌",
	SignalAcknowledge:  "✅",
}

// Emoji returns the reaction glyph used on the chat platform.
func (s Signal) Emoji() string {
	return signalEmoji[s]
}

// Role returns the role a selection signal picks.
func (s Signal) Role() (Role, bool) {
	switch s {
	case SignalSelectTank:
		return RoleTank, true
	case SignalSelectHealer:
		return RoleHealer, true
	case SignalSelectDPS:
		return RoleDPS, true
	}
	return "", false
}

// SignalForRole is the inverse of Signal.Role.
func SignalForRole(role Role) Signal {
	switch role {
	case RoleTank:
		return SignalSelectTank
	case RoleHealer:
		return SignalSelectHealer
	case RoleDPS:
		return SignalSelectDPS
	}
	return ""
}

// ParseSignal accepts either the signal name or its emoji. Variation selectors
// are ignored since platforms disagree on whether they send them.
func ParseSignal(value string) (Signal, bool) {
	trimmed := strings.TrimSpace(value)
	for signal, emoji := range signalEmoji {
		if strings.EqualFold(trimmed, string(signal)) {
			return signal, true
		}
		if stripVariation(trimmed) == stripVariation(emoji) {
			return signal, true
		}
	}
	return "", false
}

func stripVariation(value string) string {
	return strings.ReplaceAll(value, "\ufe0f", "")
}
