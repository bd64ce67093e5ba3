// Package tracing records the life of DMA transfers as tasks. Components
// raise task hooks; tracers attach to components and persist what they see.
package tracing

import (
	"github.com/ringlab/loopdma/hooking"
)

// NamedHookable represents something that has a name and can be hooked.
type NamedHookable interface {
	Name() string
	hooking.Hookable
}

// Hook positions raised by the task API.
var (
	HookPosTaskStart = &hooking.HookPos{Name: "TaskStart"}
	HookPosTaskEnd   = &hooking.HookPos{Name: "TaskEnd"}
)

// StartTask notifies the hooks attached to the domain that a task began.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail any,
) {
	if domain.NumHooks() == 0 {
		return
	}

	mustHaveRequiredFields(id, domain, kind, what)

	task := Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Where:    domain.Name(),
		Detail:   detail,
	}
	ctx := hooking.HookCtx{
		Domain: domain,
		Pos:    HookPosTaskStart,
		Item:   task,
	}
	domain.InvokeHook(ctx)
}

// EndTask notifies the hooks attached to the domain that a task finished.
func EndTask(id string, domain NamedHookable) {
	if domain.NumHooks() == 0 {
		return
	}

	task := Task{
		ID: id,
	}
	ctx := hooking.HookCtx{
		Domain: domain,
		Pos:    HookPosTaskEnd,
		Item:   task,
	}
	domain.InvokeHook(ctx)
}

func mustHaveRequiredFields(
	id string,
	domain NamedHookable,
	kind string,
	what string,
) {
	if id == "" {
		panic("id must not be empty")
	}

	if domain.Name() == "" {
		panic("domain must have a name")
	}

	if kind == "" {
		panic("kind must not be empty")
	}

	if what == "" {
		panic("what must not be empty")
	}
}
