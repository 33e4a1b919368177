package main

import "strings"

type controlKind int

const (
	controlToggle controlKind = iota
	controlAsk
	controlDiscard
	controlEnd
	controlStatus
	controlQuit
	controlHelp
)

type control struct {
	kind controlKind
	arg  string
}

// parseControl maps one stdin line to a loop command. An empty line
// toggles capture; anything unrecognized asks for help.
func parseControl(line string) control {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return control{kind: controlToggle}
	}

	verb, rest, _ := strings.Cut(trimmed, " ")
	switch strings.ToLower(verb) {
	case "ask":
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return control{kind: controlHelp}
		}
		return control{kind: controlAsk, arg: rest}
	case "discard":
		return control{kind: controlDiscard}
	case "end":
		return control{kind: controlEnd}
	case "status":
		return control{kind: controlStatus}
	case "quit", "exit":
		return control{kind: controlQuit}
	default:
		return control{kind: controlHelp}
	}
}
