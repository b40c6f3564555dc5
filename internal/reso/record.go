package reso

import "encoding/json"

// Record is one element of an envelope's value array, exactly as sent.
// Typing happens in Decode, so one malformed record never fails its page.
type Record json.RawMessage

// NewRecord encodes p as a Record
func NewRecord(p Property) Record {
	b, _ := json.Marshal(p)
	return b
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Decode types the record as a Property
func (r Record) Decode() (Property, error) {
	var p Property
	if err := json.Unmarshal(r, &p); err != nil {
		return Property{}, err
	}
	return p, nil
}

// Key returns the record's ListingId even when other fields do not decode.
// A non-string id is returned as its JSON text; a missing one as "".
func (r Record) Key() string {
	var head struct {
		ListingID json.RawMessage `json:"ListingId"`
	}
	if err := json.Unmarshal(r, &head); err != nil || len(head.ListingID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(head.ListingID, &id); err == nil {
		return id
	}
	return string(head.ListingID)
}
