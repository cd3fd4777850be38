package stream

import "strings"

// Record is one self-contained unit of the event-stream wire format:
// an optional event name plus the joined data payload.
type Record struct {
	Event string
	Data  string
}

// Parser turns an arbitrarily chunked text feed into discrete records.
// It handles both framings seen on the wire: explicit `event:`/`data:`
// line pairs, and raw blocks separated only by blank lines. A parser
// serves exactly one streaming attempt; reconnects get a fresh one.
type Parser struct {
	partial string // trailing bytes with no terminating newline yet
	event   string
	data    []string
	open    bool // current record saw at least one line
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns every record completed by it.
// A chunk boundary falling mid-line keeps the partial line buffered.
func (p *Parser) Feed(chunk string) []Record {
	if chunk == "" {
		return nil
	}
	text := p.partial + chunk
	var out []Record
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(text[:idx], "\r")
		text = text[idx+1:]
		if rec, ok := p.consumeLine(line); ok {
			out = append(out, rec)
		}
	}
	p.partial = text
	return out
}

// Flush closes the stream and returns the buffered record, if any.
// Records with an empty data payload are discarded, not emitted.
func (p *Parser) Flush() []Record {
	var out []Record
	if p.partial != "" {
		line := strings.TrimSuffix(p.partial, "\r")
		p.partial = ""
		if rec, ok := p.consumeLine(line); ok {
			out = append(out, rec)
		}
	}
	if rec, ok := p.closeRecord(); ok {
		out = append(out, rec)
	}
	return out
}

func (p *Parser) consumeLine(line string) (Record, bool) {
	if line == "" {
		return p.closeRecord()
	}
	switch {
	case strings.HasPrefix(line, "event:"):
		p.event = strings.TrimSpace(line[len("event:"):])
	case strings.HasPrefix(line, "data:"):
		p.data = append(p.data, trimFieldValue(line[len("data:"):]))
	case strings.HasPrefix(line, ":"):
		// comment / keep-alive line
	case strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:"):
		// accepted but unused
	default:
		// raw concatenation framing: the whole line is payload
		p.data = append(p.data, line)
	}
	p.open = true
	return Record{}, false
}

func (p *Parser) closeRecord() (Record, bool) {
	if !p.open {
		return Record{}, false
	}
	rec := Record{Event: p.event, Data: strings.Join(p.data, "\n")}
	p.event = ""
	p.data = nil
	p.open = false
	if strings.TrimSpace(rec.Data) == "" {
		return Record{}, false
	}
	return rec, true
}

// trimFieldValue strips the single optional space after the field colon.
func trimFieldValue(v string) string {
	if strings.HasPrefix(v, " ") {
		return v[1:]
	}
	return v
}
