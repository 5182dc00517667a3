package traceparse

import "strings"

const (
	transactionPrefix = "(TRA_"
	attachmentPrefix  = "(ATT_"
	moduleEnd         = "*/"
)

// remoteAnchors locate the remote address inside an attachment descriptor.
var remoteAnchors = []string{"TCPv4:", "TCPv6:"}

// DefaultClientSignatures are the comment tags client applications embed in
// SQL text to identify the calling module.
var DefaultClientSignatures = []string{"__SUPSQL__"}

type transactionInfo struct {
	id, isolation, recVersion, lock, read string
}

// parseTransaction reads "(TRA_12345, CONCURRENCY | WAIT | READ_WRITE)".
// Four parameters carry a record-version field; the legacy three do not.
func parseTransaction(line string) (transactionInfo, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, transactionPrefix) {
		return transactionInfo{}, false
	}
	body := strings.TrimRight(strings.TrimPrefix(line, transactionPrefix), ")")
	id, params, _ := strings.Cut(body, ",")
	if id == "" {
		return transactionInfo{}, false
	}

	info := transactionInfo{id: id}
	fields := strings.Split(params, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	switch len(fields) {
	case 4:
		info.isolation, info.recVersion, info.lock, info.read = fields[0], fields[1], fields[2], fields[3]
	case 3:
		info.isolation, info.lock, info.read = fields[0], fields[1], fields[2]
	}
	return info, true
}

type connectionInfo struct {
	attachmentID, user, remote string
}

// parseConnection reads "/db.fdb (ATT_123, SYSDBA:NONE, UTF8, TCPv4:10.0.0.1)".
// Fields are located by fixed anchors, not a grammar.
func parseConnection(line string) (connectionInfo, bool) {
	anchor, at := "", -1
	for _, a := range remoteAnchors {
		if i := strings.Index(line, a); i >= 0 {
			anchor, at = a, i
			break
		}
	}
	if at < 0 {
		return connectionInfo{}, false
	}
	remote := strings.TrimRight(line[at+len(anchor):], ")")

	attAt := strings.Index(line, attachmentPrefix)
	if attAt < 0 {
		return connectionInfo{}, false
	}
	rest := line[attAt+len(attachmentPrefix):]
	attachmentID, afterID, found := strings.Cut(rest, ",")
	if !found || attachmentID == "" {
		return connectionInfo{}, false
	}
	user, _, found := strings.Cut(afterID, ":")
	if !found {
		return connectionInfo{}, false
	}
	return connectionInfo{
		attachmentID: attachmentID,
		user:         strings.TrimSpace(user),
		remote:       remote,
	}, true
}

type moduleInfo struct {
	name, line string
}

// parseModule reads "/*__SUPSQL__/Orders.pas/1234*/" embedded anywhere in a
// line. The module name loses its extension.
func parseModule(line string, signatures []string) (moduleInfo, bool) {
	for _, sig := range signatures {
		start := strings.Index(line, sig)
		if start < 0 {
			continue
		}
		end := strings.Index(line[start:], moduleEnd)
		if end < 0 {
			continue
		}
		parts := strings.Split(line[start:start+end], "/")
		if len(parts) != 3 || parts[1] == "" {
			continue
		}
		name, _, _ := strings.Cut(parts[1], ".")
		return moduleInfo{name: name, line: parts[2]}, true
	}
	return moduleInfo{}, false
}
