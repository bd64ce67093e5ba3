package tracing

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// SQLiteTraceWriter writes finished tasks to a SQLite database, batching
// inserts so tracing a busy ring stays cheap.
type SQLiteTraceWriter struct {
	*sql.DB
	statement *sql.Stmt

	mu           sync.Mutex
	dbName       string
	tasksToWrite []Task
	batchSize    int
}

// NewSQLiteTraceWriter creates a writer. If path is empty a unique name is
// generated. The writer flushes on process exit.
func NewSQLiteTraceWriter(path string) *SQLiteTraceWriter {
	w := &SQLiteTraceWriter{
		dbName:    path,
		batchSize: 4096,
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// Init establishes a connection to the database and prepares statements.
func (t *SQLiteTraceWriter) Init() {
	t.createDatabase()
	t.createTable()
	t.prepareStatement()
}

// Write buffers a task for insertion.
func (t *SQLiteTraceWriter) Write(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tasksToWrite = append(t.tasksToWrite, task)
	if len(t.tasksToWrite) >= t.batchSize {
		t.flushLocked()
	}
}

// Flush writes all buffered tasks to the database.
func (t *SQLiteTraceWriter) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushLocked()
}

func (t *SQLiteTraceWriter) flushLocked() {
	if len(t.tasksToWrite) == 0 {
		return
	}

	t.mustExecute("BEGIN TRANSACTION")
	defer t.mustExecute("COMMIT TRANSACTION")

	for _, task := range t.tasksToWrite {
		_, err := t.statement.Exec(
			task.ID,
			task.ParentID,
			task.Kind,
			task.What,
			task.Where,
			task.StartTime,
			task.EndTime,
		)
		if err != nil {
			panic(err)
		}
	}

	t.tasksToWrite = nil
}

func (t *SQLiteTraceWriter) createDatabase() {
	if t.dbName == "" {
		t.dbName = "loopdma_trace_" + xid.New().String()
	}

	filename := t.dbName + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("trace file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Trace collected in %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	t.DB = db
}

func (t *SQLiteTraceWriter) createTable() {
	t.mustExecute(`
		create table trace
		(
			task_id    varchar(200) not null,
			parent_id  varchar(200) default '',
			kind       varchar(100) default '',
			what       varchar(100) default '',
			location   varchar(100) default '',
			start_time float        not null,
			end_time   float        default 0
		);
	`)

	t.mustExecute(`
		create index trace_task_id_uindex
			on trace (task_id);
	`)

	t.mustExecute(`
		create index trace_kind_index
			on trace (kind);
	`)

	t.mustExecute(`
		create index trace_start_time_index
			on trace (start_time);
	`)
}

func (t *SQLiteTraceWriter) prepareStatement() {
	stmt, err := t.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		panic(err)
	}

	t.statement = stmt
}

func (t *SQLiteTraceWriter) mustExecute(query string) sql.Result {
	res, err := t.Exec(query)
	if err != nil {
		panic(fmt.Errorf("failed to execute %q: %w", query, err))
	}
	return res
}

var _ TaskWriter = (*SQLiteTraceWriter)(nil)
