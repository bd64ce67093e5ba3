package tracing

// A Task is one traced unit of work, typically the life of a transfer from
// submission to retirement.
type Task struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id"`
	Kind      string  `json:"kind"`
	What      string  `json:"what"`
	Where     string  `json:"where"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	Detail any `json:"-"`
}

// TaskWriter persists finished tasks.
type TaskWriter interface {
	Init()
	Write(task Task)
	Flush()
}
