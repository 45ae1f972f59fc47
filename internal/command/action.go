// Package command wires the two editor commands: it reads the selection,
// resolves credentials, calls the chat endpoint and writes the answer back.
package command

import (
	"fmt"
)

// Command identifiers registered with the host editor.
const (
	IDRefactor = "extension.refactorWithAISuggestion"
	IDGenerate = "extension.generateWithAI"
)

// Action is what a command does with the selection.
type Action int

const (
	ActionRefactor Action = iota
	ActionGenerate
)

// ID returns the command identifier for a.
func (a Action) ID() string {
	switch a {
	case ActionRefactor:
		return IDRefactor
	case ActionGenerate:
		return IDGenerate
	default:
		return ""
	}
}

func (a Action) String() string {
	switch a {
	case ActionRefactor:
		return "refactor"
	case ActionGenerate:
		return "generate"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ActionForID maps a command identifier back to its action.
func ActionForID(id string) (Action, bool) {
	switch id {
	case IDRefactor:
		return ActionRefactor, true
	case IDGenerate:
		return ActionGenerate, true
	}
	return 0, false
}

// Continuation lines carry a four-space indent.
const refactorTemplate = "Suggest refactoring for following code:\n\n%s\n\n.\n" +
	"    Assume the output returned is being replaced with the selected code passed in the prompt.\n" +
	"    Also the reasons should be commented out in the code."

// BuildPrompt returns the user message sent for selection.
func BuildPrompt(a Action, selection string) string {
	if a == ActionRefactor {
		return fmt.Sprintf(refactorTemplate, selection)
	}
	return selection
}

// Replacement returns the text that replaces the selection once the
// complete answer is known.
func Replacement(a Action, selection, content string) string {
	if a == ActionGenerate {
		return selection + "\n" + content
	}
	return content
}
