package csp

import (
	"github.com/pkg/errors"
)

// HashSource is one hash entry of a clause: a digest algorithm name and the
// base64 form of the digest.
type HashSource struct {
	Algorithm string
	Digest    string
}

// Clause holds the allow-list and keyword flags of a single directive.
//
// A nil or zero-valued Clause renders as 'none' (except for plugin-types,
// which renders as nothing). A Clause with Wildcard set renders as nothing at
// all: the directive is omitted from the header so the browser default
// applies.
type Clause struct {
	Wildcard     bool
	Self         bool
	Allow        []string
	Hashes       []HashSource
	Nonces       []string
	Types        []string
	UnsafeInline bool
	UnsafeEval   bool
	Data         bool
}

// empty reports whether the clause carries no sources and no flags.
func (c *Clause) empty() bool {
	if c == nil {
		return true
	}
	return !c.Wildcard && !c.Self && !c.UnsafeInline && !c.UnsafeEval && !c.Data &&
		len(c.Allow) == 0 && len(c.Hashes) == 0 && len(c.Nonces) == 0 && len(c.Types) == 0
}

// decodeClause validates a loosely shaped config value into a Clause. The
// accepted shapes are:
//
//	"*"            wildcard, directive omitted from output
//	null / false   empty, renders 'none'
//	true           empty, marks the directive present
//	mapping        structured clause with the keys below
//
// Mapping keys: self, allow, hashes, nonces, types, unsafe-inline,
// unsafe-eval, data. A hashes entry is a mapping with algorithm and digest
// keys. Shape validation happens here, once, so the formatter never has to
// inspect ad hoc fields.
func decodeClause(directive string, value any) (*Clause, error) {
	switch v := value.(type) {
	case nil:
		return &Clause{}, nil
	case bool:
		return &Clause{}, nil
	case string:
		if v == "*" {
			return &Clause{Wildcard: true}, nil
		}
		return nil, errors.Errorf("directive %s: unsupported string value %q", directive, v)
	case map[string]any:
		return decodeClauseMap(directive, v)
	default:
		return nil, errors.Errorf("directive %s: unsupported value of type %T", directive, value)
	}
}

func decodeClauseMap(directive string, m map[string]any) (*Clause, error) {
	clause := &Clause{}
	for key, value := range m {
		var err error
		switch key {
		case "self":
			clause.Self, err = decodeBool(value)
		case "allow":
			clause.Allow, err = decodeStringList(value)
		case "nonces":
			clause.Nonces, err = decodeStringList(value)
		case "types":
			clause.Types, err = decodeStringList(value)
		case "hashes":
			clause.Hashes, err = decodeHashList(value)
		case "unsafe-inline":
			clause.UnsafeInline, err = decodeBool(value)
		case "unsafe-eval":
			clause.UnsafeEval, err = decodeBool(value)
		case "data":
			clause.Data, err = decodeBool(value)
		default:
			err = errors.Errorf("unknown clause key %q", key)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "directive %s", directive)
		}
	}
	return clause, nil
}

func decodeBool(value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, errors.Errorf("expected bool, got %T", value)
	}
	return b, nil
}

func decodeStringList(value any) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, errors.Errorf("expected list, got %T", value)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Errorf("expected string entry, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeHashList(value any) ([]HashSource, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, errors.Errorf("expected list of hash entries, got %T", value)
	}
	out := make([]HashSource, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Errorf("hash entry %d: expected mapping, got %T", i, item)
		}
		var h HashSource
		for key, field := range m {
			s, ok := field.(string)
			if !ok {
				return nil, errors.Errorf("hash entry %d: key %q: expected string, got %T", i, key, field)
			}
			switch key {
			case "algorithm":
				h.Algorithm = s
			case "digest":
				h.Digest = s
			default:
				return nil, errors.Errorf("hash entry %d: unknown key %q", i, key)
			}
		}
		if h.Algorithm == "" || h.Digest == "" {
			return nil, errors.Errorf("hash entry %d: algorithm and digest are both required", i)
		}
		out = append(out, h)
	}
	return out, nil
}
