package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/garagehq/docvision/pkg/doctype"
)

// ErrUnparseable means the model response could not be decoded into a
// record at all. It is the only fatal outcome of extraction; every later
// stage degrades confidence instead of failing.
var ErrUnparseable = errors.New("extract: unparseable model response")

// Parser runs the extraction pipeline: structural parse, field
// sanitization, domain enrichment, confidence rollup.
type Parser struct {
	threshold int
	log       *slog.Logger
	schemas   map[doctype.Type]*jsonschema.Schema
}

// NewParser compiles the per-type JSON Schemas up front so Parse never
// pays compilation cost on the request path.
func NewParser(confidenceThreshold int, log *slog.Logger) (*Parser, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Parser{
		threshold: confidenceThreshold,
		log:       log,
		schemas:   make(map[doctype.Type]*jsonschema.Schema, len(doctype.All())),
	}
	for _, t := range doctype.All() {
		s, err := compileSchema(doctype.SpecFor(t).Schema)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t, err)
		}
		p.schemas[t] = s
	}
	return p, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("schema.json")
}

// Parse decodes raw into a typed record for the document type and rolls up
// a validation verdict. Only the structural parse is fatal: any failure in
// sanitization or enrichment is recorded as an issue and processing
// continues with defaults, so one bad field never discards an otherwise
// usable extraction.
func (p *Parser) Parse(raw string, t doctype.Type) (*Record, *Validation, error) {
	issues := make([]Issue, 0, 4)
	add := func(code, msg string, sev Severity) {
		issues = append(issues, Issue{Code: code, Message: msg, Severity: sev})
	}

	// Stage 1: structural parse (critical).
	fields, err := p.structuralParse(raw, t)
	if err != nil {
		p.log.Error("extract.parse.structural_failure", "doc_type", t, "error", err, "raw_bytes", len(raw))
		return nil, nil, err
	}

	// Schema mismatches flag rather than abort: the decoded map is still
	// usable, it just loses trust.
	if schema := p.schemas[t]; schema != nil {
		if err := schema.Validate(anyMap(fields)); err != nil {
			add("schema_mismatch", trimSchemaError(err), SeveritySevere)
		}
	}

	rec := &Record{Type: t, RawText: raw}

	// Stage 2: field sanitization (non-critical, fault-isolated).
	p.runStage("sanitize", t, add, func() {
		sanitize(rec, fields, add)
	})

	// Stage 3: domain enrichment (non-critical, fault-isolated).
	p.runStage("enrich", t, add, func() {
		enrich(rec, add)
	})

	// Stage 4: confidence rollup (always runs).
	v := Rollup(issues, p.threshold)

	p.log.Info("extract.parse.done",
		"doc_type", t, "confidence", v.Confidence, "status", v.Status, "issues", len(v.Issues))
	return rec, &v, nil
}

// runStage executes a non-critical stage, converting a panic into a severe
// issue so the pipeline keeps going with defaults.
func (p *Parser) runStage(name string, t doctype.Type, add func(string, string, Severity), fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("extract.parse.stage_panic", "stage", name, "doc_type", t, "panic", r)
			add(name+"_failed", fmt.Sprintf("%s stage failed: %v; defaults applied", name, r), SeveritySevere)
		}
	}()
	fn()
}

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	digitsRe = regexp.MustCompile(`\d[\d,]*`)
)

// structuralParse strips formatting artifacts and decodes the response
// into a loosely-typed map. Models sometimes answer simple reads (an
// odometer) with a bare number or string; those are folded into the
// object shape the schema expects instead of being rejected.
func (p *Parser) structuralParse(raw string, t doctype.Type) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		// Not JSON at all. Salvage a scalar answer where the type allows it.
		if scalar, ok := salvageScalar(cleaned, t); ok {
			return scalar, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		return v, nil
	case float64, string:
		if scalar, ok := scalarToFields(v, t); ok {
			return scalar, nil
		}
		return nil, fmt.Errorf("%w: scalar response for %s", ErrUnparseable, t)
	default:
		return nil, fmt.Errorf("%w: unexpected top-level %T", ErrUnparseable, decoded)
	}
}

// salvageScalar handles plain-text answers like "123,456 mi".
func salvageScalar(text string, t doctype.Type) (map[string]any, bool) {
	switch t {
	case doctype.Odometer:
		if m := digitsRe.FindString(text); m != "" {
			var n float64
			if _, err := fmt.Sscan(strings.ReplaceAll(m, ",", ""), &n); err == nil {
				return map[string]any{"mileage": n}, true
			}
		}
	case doctype.Unknown:
		return map[string]any{"text": text}, true
	}
	return nil, false
}

func scalarToFields(v any, t doctype.Type) (map[string]any, bool) {
	switch t {
	case doctype.Odometer:
		switch s := v.(type) {
		case float64:
			return map[string]any{"mileage": s}, true
		case string:
			return salvageScalar(s, t)
		}
	case doctype.Unknown:
		if s, ok := v.(string); ok {
			return map[string]any{"text": s}, true
		}
	}
	return nil, false
}

// anyMap round-trips through interface{} shapes jsonschema understands.
func anyMap(m map[string]any) any {
	b, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return m
	}
	return v
}

// trimSchemaError keeps issue messages readable; the full validator output
// nests every failed branch.
func trimSchemaError(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return "response does not match expected shape: " + msg
}
