package supervisor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/tinytelemetry/fdbtracer/internal/channel"
	"github.com/tinytelemetry/fdbtracer/internal/duckdb"
	"github.com/tinytelemetry/fdbtracer/internal/ingest"
	"github.com/tinytelemetry/fdbtracer/internal/logsource"
	"github.com/tinytelemetry/fdbtracer/internal/model"
	"github.com/tinytelemetry/fdbtracer/internal/schema"
	"github.com/tinytelemetry/fdbtracer/internal/tcpserver"
	"github.com/tinytelemetry/fdbtracer/internal/traceparse"
)

var trace = strings.Join([]string{
	"Trace session ID 7 started",
	"",
	"2024-03-11T10:15:02.1230 (4512:0x7f3a5c0) START_TRANSACTION",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\t(TRA_88231, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)",
	"",
	"2024-03-11T10:15:02.1410 (4512:0x7f3a5c0) EXECUTE_STATEMENT_FINISH",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\t(TRA_88231, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)",
	"",
	"Statement 551:",
	traceparse.StatementStart,
	"select id, total",
	"from orders /*__SUPSQL__/Orders.pas/1234*/",
	"where id = ?",
	traceparse.StatementEnd,
	"param0 = bigint, \"42\"",
	"      3 ms, 12 fetch(es)",
	"",
	"2024-03-11T10:15:02.2000 (4512:0x7f3a5c0) COMMIT_TRANSACTION",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\t(TRA_88231, CONCURRENCY | WAIT | READ_WRITE)",
}, "\n") + "\n"

func testLogger() (*log.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, hook
}

func testSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default: %v", err)
	}
	return s
}

func writeTrace(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.log")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	return path
}

func runWithTimeout(t *testing.T, fn func() (Report, error)) Report {
	t.Helper()
	type result struct {
		rep Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := fn()
		done <- result{rep, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Run: %v", r.err)
		}
		return r.rep
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return Report{}
	}
}

func TestOpenTwiceReturnsErrSessionOpen(t *testing.T) {
	logger, _ := testLogger()
	sup := New(Config{MaxErrors: 5, Logger: logger})
	s := testSchema(t)

	sess, err := sup.Open(s, channel.NewQueueStore(4), "stdin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.ID.String() == "" || sess.Channel == nil || sess.Schema != s {
		t.Fatalf("session = %+v", sess)
	}
	if _, err := sup.Open(s, channel.NewQueueStore(4), "stdin"); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("second Open = %v, want ErrSessionOpen", err)
	}
	if sup.Session() != sess {
		t.Fatal("Session() must return the first session")
	}
}

func TestRunWithoutSession(t *testing.T) {
	sup := New()
	if _, err := sup.Run(context.Background(), nil, nil, nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Run = %v, want ErrNoSession", err)
	}
}

func TestRunFileIntoDuckDB(t *testing.T) {
	logger, hook := testLogger()
	s := testSchema(t)
	sup := New(Config{MaxErrors: 5, PollInterval: time.Millisecond, Logger: logger})

	sess, err := sup.Open(s, channel.NewFileStore(writeTrace(t, trace)), "file")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := duckdb.NewStore("", s)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), store, ingest.Config{PollInterval: time.Millisecond})
	rep := runWithTimeout(t, func() (Report, error) {
		return sup.Run(context.Background(), loop, nil, nil)
	})

	if rep.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %v, want exhausted", rep.Outcome)
	}
	if rep.Stats.EventsPersisted != 3 || rep.Errors != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.SessionID != sess.ID.String() {
		t.Fatalf("SessionID = %q", rep.SessionID)
	}
	if !errors.Is(store.Close(), duckdb.ErrSinkClosed) {
		t.Fatal("loop should have closed the store")
	}
	var sawDisconnect bool
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "Disconnected from dump database") {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Fatal("disconnect diagnostic was not drained into the log")
	}
}

func TestRunPersistsRowsVisibleOnReopen(t *testing.T) {
	logger, _ := testLogger()
	s := testSchema(t)
	dbPath := filepath.Join(t.TempDir(), "dump.duckdb")
	sup := New(Config{MaxErrors: 5, PollInterval: time.Millisecond, Logger: logger})

	sess, err := sup.Open(s, channel.NewFileStore(writeTrace(t, trace)), "file")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := duckdb.NewStore(dbPath, s)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), store)
	runWithTimeout(t, func() (Report, error) {
		return sup.Run(context.Background(), loop, nil, nil)
	})

	reopened, err := duckdb.NewStore(dbPath, s)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	var sqlText, remote string
	err = reopened.DB().QueryRow(`SELECT SQL_TEXT, REMOTE_ADDRESS FROM trace_data_parsed
		WHERE EVENT_NAME = 'EXECUTE_STATEMENT_FINISH'`).Scan(&sqlText, &remote)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if strings.Contains(sqlText, "-----") || strings.Contains(sqlText, "^^^^^") {
		t.Errorf("SQL_TEXT contains markers: %q", sqlText)
	}
	if !strings.HasPrefix(sqlText, "select id, total") || !strings.HasSuffix(sqlText, "where id = ?") {
		t.Errorf("SQL_TEXT = %q", sqlText)
	}
	if remote == "" {
		t.Error("REMOTE_ADDRESS not persisted")
	}
	if n, err := reopened.EventCount(); err != nil || n != 3 {
		t.Errorf("EventCount = %d, %v; want 3", n, err)
	}
}

type failingSink struct{}

func (failingSink) Ping(context.Context) error { return nil }
func (failingSink) Close() error               { return nil }

func (failingSink) Begin(context.Context) (ingest.SinkTx, error) {
	return nil, errors.New("disk full")
}

func TestRunTripsBreaker(t *testing.T) {
	logger, hook := testLogger()
	s := testSchema(t)
	sup := New(Config{MaxErrors: 1, PollInterval: time.Millisecond, Logger: logger})

	var body strings.Builder
	for i := 0; i < 50; i++ {
		body.WriteString("2024-03-11T10:15:02.1230 (1:0x1) START_TRANSACTION\n")
	}
	sess, err := sup.Open(s, channel.NewFileStore(writeTrace(t, body.String())), "file")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), failingSink{}, ingest.Config{PollInterval: time.Millisecond})

	rep := runWithTimeout(t, func() (Report, error) {
		return sup.Run(context.Background(), loop, nil, nil)
	})
	if rep.Outcome != OutcomeBreakerTripped {
		t.Fatalf("Outcome = %v, want breaker tripped", rep.Outcome)
	}
	if !sup.Breaker().Tripped() {
		t.Fatal("breaker not tripped")
	}

	var sawMax bool
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "Maximum errors reached") && e.Level == log.ErrorLevel {
			sawMax = true
		}
	}
	if !sawMax {
		t.Fatal("missing maximum errors log entry")
	}
}

func TestRunInterrupt(t *testing.T) {
	logger, _ := testLogger()
	s := testSchema(t)
	sup := New(Config{MaxErrors: 5, PollInterval: time.Millisecond, Logger: logger})

	sess, err := sup.Open(s, channel.NewQueueStore(16), "stdin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := duckdb.NewStore("", s)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), store, ingest.Config{PollInterval: time.Millisecond})

	interrupt := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(interrupt)
	}()
	rep := runWithTimeout(t, func() (Report, error) {
		return sup.Run(context.Background(), loop, nil, interrupt)
	})
	if rep.Outcome != OutcomeInterrupted {
		t.Fatalf("Outcome = %v, want interrupted", rep.Outcome)
	}
	if !sup.Status().Stopped {
		t.Fatal("Status().Stopped = false after interrupt")
	}
}

type closedSource struct{ blocks chan []string }

func (c closedSource) Blocks() <-chan []string { return c.blocks }
func (closedSource) Stop()                     {}
func (closedSource) Name() string              { return "stdin" }

func TestRunStreamingSourceExhausted(t *testing.T) {
	logger, _ := testLogger()
	s := testSchema(t)
	sup := New(Config{MaxErrors: 5, PollInterval: time.Millisecond, Logger: logger})

	sess, err := sup.Open(s, channel.NewQueueStore(64), "stdin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := duckdb.NewStore("", s)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), store, ingest.Config{PollInterval: time.Millisecond})

	src := closedSource{blocks: make(chan []string, 64)}
	for _, l := range strings.Split(trace, "\n") {
		src.blocks <- []string{l}
	}
	close(src.blocks)

	rep := runWithTimeout(t, func() (Report, error) {
		return sup.Run(context.Background(), loop, src, nil)
	})
	if rep.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %v, want exhausted", rep.Outcome)
	}
	// The closed source ends the stream, so the last event is flushed too.
	if rep.Stats.EventsPersisted != 3 {
		t.Fatalf("EventsPersisted = %d, want 3", rep.Stats.EventsPersisted)
	}
}

func TestRunConcurrentTCPSendersKeepTheirEvents(t *testing.T) {
	logger, _ := testLogger()
	s := testSchema(t)
	dbPath := filepath.Join(t.TempDir(), "dump.duckdb")
	sup := New(Config{MaxErrors: 5, PollInterval: time.Millisecond, Logger: logger})

	sess, err := sup.Open(s, channel.NewQueueStore(64), "tcp")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store, err := duckdb.NewStore(dbPath, s)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loop := ingest.NewLoop(sess.Channel, traceparse.NewParser(s), store, ingest.Config{PollInterval: time.Millisecond})

	server := tcpserver.NewServer("127.0.0.1:0", tcpserver.ServerConfig{Boundary: traceparse.IsEventHeader})
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src := logsource.NewTCPSource(server)

	reps := make(chan Report, 1)
	go func() {
		rep, _ := sup.Run(context.Background(), loop, src, nil)
		reps <- rep
	}()

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", server.Addr())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		return conn
	}
	a, b := dial(), dial()
	io.WriteString(a, "2024-03-11T10:15:02.1230 (4512:0x1) START_TRANSACTION\n")
	io.WriteString(b, "2024-03-11T10:15:02.1300 (4513:0x2) EXECUTE_STATEMENT_FINISH\n"+
		"\t\t(TRA_9, CONCURRENCY | WAIT | READ_WRITE)\n")
	b.Close()
	waitLines(t, sup, 2)
	io.WriteString(a, "\t\t(TRA_7, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)\n")
	a.Close()
	waitLines(t, sup, 4)
	src.Stop()

	var rep Report
	select {
	case rep = <-reps:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if rep.Outcome != OutcomeExhausted || rep.Stats.EventsPersisted != 2 {
		t.Fatalf("report = %+v", rep)
	}

	reopened, err := duckdb.NewStore(dbPath, s)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	for event, want := range map[string]string{"START_TRANSACTION": "7", "EXECUTE_STATEMENT_FINISH": "9"} {
		var got string
		err := reopened.DB().QueryRow(`SELECT TRANSACTIONID FROM trace_data_parsed WHERE EVENT_NAME = ?`, event).Scan(&got)
		if err != nil {
			t.Fatalf("select %s: %v", event, err)
		}
		if got != want {
			t.Errorf("%s TRANSACTIONID = %q, want %q", event, got, want)
		}
	}
}

func waitLines(t *testing.T, sup *Supervisor, n uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sup.Status().Stats.LinesProcessed < n {
		if time.Now().After(deadline) {
			t.Fatalf("LinesProcessed = %d, want %d", sup.Status().Stats.LinesProcessed, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStatusBeforeAndAfterOpen(t *testing.T) {
	sup := New(Config{MaxErrors: 7})
	st := sup.Status()
	if st.SessionID != "" || st.MaxErrors != 7 {
		t.Fatalf("Status() before Open = %+v", st)
	}

	if _, err := sup.Open(testSchema(t), channel.NewQueueStore(1), "tcp"); err != nil {
		t.Fatal(err)
	}
	st = sup.Status()
	if st.SessionID == "" || st.Source != "tcp" || st.Stats.State != ingest.StateIdle {
		t.Fatalf("Status() after Open = %+v", st)
	}
}
