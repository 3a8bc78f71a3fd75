package tui

import (
	"errors"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSend
	cmdReset
	cmdAdd
	cmdRemove
)

type command struct {
	kind commandKind
	name string
	text string
}

// parseCommand turns an input line into a command. Lines not starting with
// a slash are chat messages.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, text: line}, nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "/reset":
		return command{kind: cmdReset}, nil
	case "/add":
		name, instruction, _ := strings.Cut(rest, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return command{}, errors.New("usage: /add Name: instruction")
		}
		return command{kind: cmdAdd, name: name, text: strings.TrimSpace(instruction)}, nil
	case "/remove":
		if rest == "" {
			return command{}, errors.New("usage: /remove Name")
		}
		return command{kind: cmdRemove, name: rest}, nil
	default:
		return command{}, errors.New("unknown command " + verb)
	}
}
