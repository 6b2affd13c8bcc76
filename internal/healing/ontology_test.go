package healing

import (
	"os"
	"reflect"
	"testing"
)

func TestAlternativesConceptGroup(t *testing.T) {
	onto := DefaultOntology()
	alts := onto.Alternatives("tax_id")
	want := []string{"vat_number", "tax_number", "fiscal_code"}
	if !reflect.DeepEqual(alts, want) {
		t.Fatalf("alts: %v", alts)
	}
}

func TestAlternativesNormalizesSeparatorsAndCase(t *testing.T) {
	onto := DefaultOntology()
	alts := onto.Alternatives("Tax-ID")
	if len(alts) == 0 || alts[0] != "vat_number" {
		t.Fatalf("alts: %v", alts)
	}
}

func TestAlternativesUnknownColumn(t *testing.T) {
	if alts := DefaultOntology().Alternatives("frobnicate"); len(alts) != 0 {
		t.Fatalf("alts: %v", alts)
	}
	var nilOnto *Ontology
	if alts := nilOnto.Alternatives("tax_id"); alts != nil {
		t.Fatalf("nil ontology: %v", alts)
	}
}

func TestFuzzyAlternatives(t *testing.T) {
	onto := DefaultOntology()
	// revenue_total is in no group, but shares the "revenue" token with
	// the revenue concept name.
	alts := onto.FuzzyAlternatives("revenue_total")
	if len(alts) == 0 || alts[0] != "revenue" {
		t.Fatalf("alts: %v", alts)
	}
	if alts := onto.FuzzyAlternatives("frobnicate"); len(alts) != 0 {
		t.Fatalf("unexpected fuzzy alts: %v", alts)
	}
}

func TestLoadOntology(t *testing.T) {
	file := t.TempDir() + "/ontology.json"
	data := `{"revenue": ["revenue", "total_spend"]}`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	onto, err := LoadOntology(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if alts := onto.Alternatives("total_spend"); len(alts) != 1 || alts[0] != "revenue" {
		t.Fatalf("alts: %v", alts)
	}
}

func TestLoadOntologyErrors(t *testing.T) {
	if _, err := LoadOntology("/no/such/ontology.json"); err == nil {
		t.Fatalf("expected error")
	}
	file := t.TempDir() + "/bad.json"
	if err := os.WriteFile(file, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOntology(file); err == nil {
		t.Fatalf("expected error")
	}
}
