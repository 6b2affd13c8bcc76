package healing

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Ontology is the static map of concept name → ordered column-name
// synonyms. It is loaded once and queried read-only.
type Ontology struct {
	concepts map[string][]string
	names    []string
}

func NewOntology(concepts map[string][]string) *Ontology {
	names := make([]string, 0, len(concepts))
	for name := range concepts {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Ontology{concepts: concepts, names: names}
}

// LoadOntology reads a concept map from a JSON file.
func LoadOntology(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var concepts map[string][]string
	if err := json.Unmarshal(data, &concepts); err != nil {
		return nil, err
	}
	return NewOntology(concepts), nil
}

// DefaultOntology covers the column families the governed data tools are
// known to touch.
func DefaultOntology() *Ontology {
	return NewOntology(map[string][]string{
		"revenue":        {"revenue", "total_spend", "total_revenue", "sales_amount", "amount"},
		"tax_identifier": {"tax_id", "vat_number", "tax_number", "fiscal_code"},
		"customer_name":  {"name", "customer_name", "full_name", "client_name"},
		"email_address":  {"email", "email_address", "contact_email"},
		"phone_number":   {"phone", "phone_number", "contact_phone"},
		"created_time":   {"created_at", "creation_date", "registered_at", "signup_date"},
	})
}

// Alternatives returns the synonyms sharing a concept group with column,
// excluding the column itself. Membership is tested on the normalized form
// (lowercase, separators stripped). Concepts are scanned in sorted-name
// order so the result is deterministic.
func (o *Ontology) Alternatives(column string) []string {
	if o == nil {
		return nil
	}
	target := normalizeColumn(column)
	var out []string
	for _, name := range o.names {
		members := o.concepts[name]
		if !containsNormalized(members, target) {
			continue
		}
		for _, member := range members {
			if normalizeColumn(member) != target {
				out = append(out, member)
			}
		}
	}
	return out
}

// FuzzyAlternatives is the fallback when no concept group contains the
// column: any concept whose name shares a token with the column name
// contributes its members.
func (o *Ontology) FuzzyAlternatives(column string) []string {
	if o == nil {
		return nil
	}
	colTokens := columnTokens(column)
	var out []string
	for _, name := range o.names {
		if !tokensOverlap(columnTokens(name), colTokens) {
			continue
		}
		for _, member := range o.concepts[name] {
			if normalizeColumn(member) != normalizeColumn(column) {
				out = append(out, member)
			}
		}
	}
	return out
}

func normalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, s)
}

func columnTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
}

func containsNormalized(members []string, target string) bool {
	for _, m := range members {
		if normalizeColumn(m) == target {
			return true
		}
	}
	return false
}

func tokensOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
