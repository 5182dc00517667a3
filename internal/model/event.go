package model

import "time"

// Field names produced by the trace parser. The schema declaration decides
// which of them are persisted; undeclared ones are silently dropped.
const (
	FieldDateTime      = "DATE_TIME"
	FieldEventName     = "EVENT_NAME"
	FieldRawOutput     = "RAW_OUTPUT"
	FieldSQLText       = "SQL_TEXT"
	FieldTransactionID = "TRANSACTIONID"
	FieldIsolationMode = "ISOLATION_MODE"
	FieldRecVersion    = "REC_VERSION"
	FieldLockMode      = "LOCK_MODE"
	FieldReadMode      = "READ_MODE"
	FieldAttachmentID  = "ATTACHMENTID"
	FieldUserName      = "USER_NAME"
	FieldRemoteAddress = "REMOTE_ADDRESS"
	FieldModuleName    = "MODULE_NAME"
	FieldModuleLine    = "MODULE_LINE"
)

// EventRecord is one parsed trace event shaped by a Schema.
// A nil value means the attribute was absent in the trace.
type EventRecord struct {
	schema *Schema
	values []any
}

// Schema returns the schema the record was created from.
func (r *EventRecord) Schema() *Schema { return r.schema }

// Set assigns a field value. Names outside the schema are ignored.
func (r *EventRecord) Set(name string, value any) {
	if i, ok := r.schema.index[name]; ok {
		r.values[i] = value
	}
}

// Get returns the field value, or nil when unset or undeclared.
func (r *EventRecord) Get(name string) any {
	if i, ok := r.schema.index[name]; ok {
		return r.values[i]
	}
	return nil
}

// String returns a string field, or "" when it is NULL or not a string.
func (r *EventRecord) String(name string) string {
	s, _ := r.Get(name).(string)
	return s
}

// Time returns a timestamp field, or the zero time.
func (r *EventRecord) Time(name string) time.Time {
	t, _ := r.Get(name).(time.Time)
	return t
}

// Values returns a copy of the values in schema order, ready to bind to an
// INSERT statement whose column list is Schema().Fields().
func (r *EventRecord) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}
