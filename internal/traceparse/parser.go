package traceparse

import (
	"strings"

	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// State controls how content lines inside an event are classified.
type State int

const (
	OutsideEvent State = iota
	SQLTextBlock
)

func (s State) String() string {
	if s == SQLTextBlock {
		return "sql-text"
	}
	return "outside"
}

// Fixed rules framing the statement text of an event.
var (
	StatementStart = strings.Repeat("-", 79)
	StatementEnd   = strings.Repeat("^", 79)
)

// Option configures a Parser.
type Option func(*Parser)

// WithClientSignatures replaces the module marker signatures.
func WithClientSignatures(signatures ...string) Option {
	return func(p *Parser) {
		if len(signatures) > 0 {
			p.signatures = append([]string(nil), signatures...)
		}
	}
}

// Parser accumulates trace lines into EventRecords.
// It is not safe for concurrent use.
type Parser struct {
	schema     *model.Schema
	signatures []string

	state   State
	pending *model.EventRecord // nil until the first header
	raw     strings.Builder
	sql     strings.Builder
	hasSQL  bool

	sealed *model.EventRecord
}

// NewParser creates a parser producing records shaped by schema.
func NewParser(schema *model.Schema, opts ...Option) *Parser {
	p := &Parser{
		schema:     schema,
		signatures: DefaultClientSignatures,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current classification state.
func (p *Parser) State() State { return p.state }

// Parse consumes one raw line. It never fails: anything unrecognized only
// contributes to RAW_OUTPUT of the current event.
func (p *Parser) Parse(line string) {
	line = strings.TrimRight(line, "\r\n ")

	if ts, name, ok := parseHeader(line); ok {
		p.state = OutsideEvent
		if p.pending != nil {
			p.seal()
		}
		p.pending = p.schema.NewRecord()
		p.pending.Set(model.FieldDateTime, ts)
		p.pending.Set(model.FieldEventName, name)
		p.raw.WriteString(line)
		return
	}
	if p.pending == nil {
		return
	}

	p.raw.WriteByte('\n')
	p.raw.WriteString(line)

	switch line {
	case StatementStart:
		p.state = SQLTextBlock
		return
	case StatementEnd:
		p.state = OutsideEvent
		return
	}

	if p.state == SQLTextBlock {
		if p.hasSQL {
			p.sql.WriteByte('\n')
		}
		p.sql.WriteString(line)
		p.hasSQL = true
		return
	}

	p.classify(line)
}

func (p *Parser) classify(line string) {
	if tra, ok := parseTransaction(line); ok {
		p.pending.Set(model.FieldTransactionID, tra.id)
		p.pending.Set(model.FieldIsolationMode, nullable(tra.isolation))
		p.pending.Set(model.FieldRecVersion, nullable(tra.recVersion))
		p.pending.Set(model.FieldLockMode, nullable(tra.lock))
		p.pending.Set(model.FieldReadMode, nullable(tra.read))
		return
	}
	if conn, ok := parseConnection(line); ok {
		p.pending.Set(model.FieldAttachmentID, conn.attachmentID)
		p.pending.Set(model.FieldUserName, conn.user)
		p.pending.Set(model.FieldRemoteAddress, conn.remote)
		return
	}
	if mod, ok := parseModule(line, p.signatures); ok {
		p.pending.Set(model.FieldModuleName, mod.name)
		p.pending.Set(model.FieldModuleLine, mod.line)
	}
}

// PopEvent returns the most recently sealed event once, then nil until
// another event is sealed.
func (p *Parser) PopEvent() *model.EventRecord {
	ev := p.sealed
	p.sealed = nil
	return ev
}

// Flush seals the pending event at end of stream. It reports whether an
// event was sealed; the caller still collects it with PopEvent.
func (p *Parser) Flush() bool {
	if p.pending == nil {
		return false
	}
	p.seal()
	p.state = OutsideEvent
	return true
}

func (p *Parser) seal() {
	p.pending.Set(model.FieldRawOutput, p.raw.String())
	if p.hasSQL {
		p.pending.Set(model.FieldSQLText, p.sql.String())
	}
	p.sealed = p.pending
	p.pending = nil
	p.raw.Reset()
	p.sql.Reset()
	p.hasSQL = false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
