package documents

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSerializeCopiesElementListVerbatim(t *testing.T) {
	list := sampleElements()
	doc := Serialize(list, EventData{Title: "x"}, Visibility{IsPublic: true})
	if !reflect.DeepEqual(doc.Elements, list) {
		t.Fatalf("serialize altered the element list")
	}
	list[0].Visible = false
	if !doc.Elements[0].Visible {
		t.Fatalf("serialize must copy the list")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := sampleDocument()
	doc.ID = "evt_1"
	doc.OwnerID = "user-1"
	doc.Visibility = Visibility{IsPublic: false, PIN: "4321"}
	doc.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc.UpdatedAt = doc.CreatedAt.Add(time.Hour)

	payload, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, doc) {
		t.Fatalf("round trip mismatch\nwant %+v\ngot  %+v", doc, decoded)
	}
}

func TestEncodeUsesPersistedLayout(t *testing.T) {
	doc := sampleDocument()
	doc.OwnerID = "user-1"
	payload, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"elements", "eventData", "isPublic", "privatePin", "createdBy", "createdAt", "updatedAt"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing key %q in %s", key, payload)
		}
	}
	if string(fields["privatePin"]) != "null" {
		t.Fatalf("expected null pin for public document, got %s", fields["privatePin"])
	}
	if string(fields["createdBy"]) != `"user-1"` {
		t.Fatalf("expected owner in createdBy, got %s", fields["createdBy"])
	}
}

func TestDecodeDefaultsKindAndIgnoresPublicPin(t *testing.T) {
	raw := `{"elements":[],"eventData":{"title":"t"},"isPublic":true,"privatePin":"1234","createdBy":"u"}`
	doc, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Kind != KindEvent || doc.Visibility.PIN != "" || doc.OwnerID != "u" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestValidPIN(t *testing.T) {
	testCases := map[string]bool{
		"":        false,
		"123":     false,
		"1234":    true,
		"123456":  true,
		"1234567": false,
		"12a4":    false,
	}
	for pin, expected := range testCases {
		if ValidPIN(pin) != expected {
			t.Fatalf("ValidPIN(%q) = %v, want %v", pin, !expected, expected)
		}
	}
}

func TestCheckElementsRejectsDuplicates(t *testing.T) {
	list := sampleElements()
	if err := checkElements(list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := checkElements(append(list, list[2])); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	twin := list[0]
	twin.ID = "background"
	if err := checkElements(append(list[1:], list[0], twin)); err == nil {
		t.Fatalf("expected duplicate background error")
	}
}
