package traceparse

import (
	"testing"

	"github.com/tinytelemetry/fdbtracer/internal/model"
	"github.com/tinytelemetry/fdbtracer/internal/schema"
)

// sampleTrace is a trimmed fbtrace session with three events.
var sampleTrace = []string{
	"Trace session ID 7 started",
	"",
	"2024-03-11T10:15:02.1230 (4512:0x7f3a5c0) START_TRANSACTION",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\tC:\\erp\\client.exe:9812",
	"\t\t(TRA_88231, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)",
	"",
	"2024-03-11T10:15:02.1410 (4512:0x7f3a5c0) EXECUTE_STATEMENT_FINISH",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\t(TRA_88231, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)",
	"",
	"Statement 551:",
	StatementStart,
	"select id, total",
	"from orders /*__SUPSQL__/Orders.pas/1234*/",
	"where id = ?",
	StatementEnd,
	"param0 = bigint, \"42\"",
	"      3 ms, 12 fetch(es)",
	"",
	"2024-03-11T10:15:02.2000 (4512:0x7f3a5c0) COMMIT_TRANSACTION",
	"\t/data/erp.fdb (ATT_3120, SYSDBA:NONE, UTF8, TCPv4:10.1.2.3/50412)",
	"\t\t(TRA_88231, CONCURRENCY | WAIT | READ_WRITE)",
}

func testSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default: %v", err)
	}
	return s
}

// feed parses lines, collecting every popped event, and optionally flushes.
func feed(p *Parser, lines []string, flush bool) []*model.EventRecord {
	var out []*model.EventRecord
	for _, line := range lines {
		p.Parse(line)
		if ev := p.PopEvent(); ev != nil {
			out = append(out, ev)
		}
	}
	if flush && p.Flush() {
		out = append(out, p.PopEvent())
	}
	return out
}
