package tracing

import (
	"sync"

	"github.com/ringlab/loopdma/hooking"
)

// A DBTracer turns task hooks into rows in a TaskWriter. It keeps tasks
// that have started but not ended in memory; a task is handed to the
// writer only once it ends, with both timestamps filled in.
type DBTracer struct {
	timeTeller TimeTeller
	writer     TaskWriter

	mu            sync.Mutex
	inflightTasks map[string]Task
}

// NewDBTracer creates a DBTracer and initializes its writer.
func NewDBTracer(timeTeller TimeTeller, writer TaskWriter) *DBTracer {
	writer.Init()

	return &DBTracer{
		timeTeller:    timeTeller,
		writer:        writer,
		inflightTasks: make(map[string]Task),
	}
}

// Func records task starts and ends. It implements hooking.Hook.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.startTask(ctx.Item.(Task))
	case HookPosTaskEnd:
		t.endTask(ctx.Item.(Task))
	}
}

func (t *DBTracer) startTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflightTasks[task.ID] = task
}

func (t *DBTracer) endTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.mu.Lock()
	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.inflightTasks, task.ID)
	t.mu.Unlock()

	originalTask.EndTime = now
	t.writer.Write(originalTask)
}

// Flush persists everything the writer has buffered.
func (t *DBTracer) Flush() {
	t.writer.Flush()
}

var _ hooking.Hook = (*DBTracer)(nil)
