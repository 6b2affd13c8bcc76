package masking

import (
	"reflect"
	"testing"
)

func TestMaskStringEmail(t *testing.T) {
	out := MaskString("john.doe@example.com", SensitivityStandard)
	if out != "***@***.com" {
		t.Fatalf("out: %s", out)
	}
	embedded := MaskString("contact alice at alice.smith@corp.io today", SensitivityStandard)
	if embedded != "contact alice at ***@***.com today" {
		t.Fatalf("embedded: %s", embedded)
	}
}

func TestMaskStringPhone(t *testing.T) {
	if out := MaskString("(555) 123-4567", SensitivityStandard); out != "(***) ***-4567" {
		t.Fatalf("standard: %s", out)
	}
	if out := MaskString("(555) 123-4567", SensitivityStrict); out != "(***) ***-****" {
		t.Fatalf("strict: %s", out)
	}
	if out := MaskString("call 555-123-4567 now", SensitivityStandard); out != "call ***-***-4567 now" {
		t.Fatalf("dashed: %s", out)
	}
}

func TestMaskStringSSN(t *testing.T) {
	if out := MaskString("123-45-6789", SensitivityStandard); out != "***-**-6789" {
		t.Fatalf("standard: %s", out)
	}
	if out := MaskString("123-45-6789", SensitivityStrict); out != "***-**-****" {
		t.Fatalf("strict: %s", out)
	}
}

func TestMaskStringCard(t *testing.T) {
	if out := MaskString("4111-1111-1111-1234", SensitivityStandard); out != "****-****-****-1234" {
		t.Fatalf("standard: %s", out)
	}
	if out := MaskString("4111111111111234", SensitivityStrict); out != "****************" {
		t.Fatalf("strict: %s", out)
	}
}

func TestMaskStringPassthrough(t *testing.T) {
	in := "nothing sensitive here, order 12345"
	if out := MaskString(in, SensitivityStrict); out != in {
		t.Fatalf("out: %s", out)
	}
}

func TestMaskNestedShape(t *testing.T) {
	in := map[string]any{
		"customer": map[string]any{
			"name":  "John Doe",
			"email": "john.doe@example.com",
			"phone": "(555) 123-4567",
		},
		"rows": []any{
			map[string]any{"ssn": "123-45-6789", "amount": 42.5},
			"support@corp.com",
		},
		"count": 2,
		"ok":    true,
		"none":  nil,
	}
	out, ok := Mask(in, SensitivityStandard).(map[string]any)
	if !ok {
		t.Fatalf("shape changed: %T", Mask(in, SensitivityStandard))
	}
	customer := out["customer"].(map[string]any)
	if customer["email"] != "***@***.com" {
		t.Fatalf("email: %v", customer["email"])
	}
	if customer["phone"] != "(***) ***-4567" {
		t.Fatalf("phone: %v", customer["phone"])
	}
	if customer["name"] != "John Doe" {
		t.Fatalf("name: %v", customer["name"])
	}
	rows := out["rows"].([]any)
	if rows[0].(map[string]any)["ssn"] != "***-**-6789" {
		t.Fatalf("ssn: %v", rows[0])
	}
	if rows[1] != "***@***.com" {
		t.Fatalf("list email: %v", rows[1])
	}
	if out["count"] != 2 || out["ok"] != true || out["none"] != nil {
		t.Fatalf("scalars changed: %v", out)
	}
	// Input must not be mutated.
	if in["customer"].(map[string]any)["email"] != "john.doe@example.com" {
		t.Fatalf("input mutated")
	}
}

func TestMaskIdempotent(t *testing.T) {
	inputs := []any{
		"john.doe@example.com",
		"(555) 123-4567 or 123-45-6789",
		"4111-1111-1111-1111",
		map[string]any{
			"email":   "a@b.co",
			"profile": map[string]any{"phone": "555-123-4567"},
			"cards":   []any{"4111 1111 1111 1111"},
		},
	}
	for _, level := range []Sensitivity{SensitivityStandard, SensitivityStrict} {
		for _, in := range inputs {
			once := Mask(in, level)
			twice := Mask(once, level)
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("not idempotent (%s): %v vs %v", level, once, twice)
			}
		}
	}
}

func TestParseSensitivity(t *testing.T) {
	if ParseSensitivity("strict") != SensitivityStrict {
		t.Fatalf("strict")
	}
	if ParseSensitivity("STRICT") != SensitivityStrict {
		t.Fatalf("upper")
	}
	if ParseSensitivity("") != SensitivityStandard {
		t.Fatalf("default")
	}
	if ParseSensitivity("bogus") != SensitivityStandard {
		t.Fatalf("unknown")
	}
}
