// Package transformer maps the nested user payload returned by the user API
// into the flat six-column row stored in the users table.
//
// The projection is deliberately dumb: fields are copied as-is, only their
// presence is checked. A missing key is reported as *MissingFieldError naming
// the dotted key path; an absent or empty "results" list is reported as
// *EmptyResultError.
package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Columns is the destination column order. FlatUserRow.Values follows it and
// the users table is created with exactly these columns.
var Columns = []string{"firstname", "lastname", "country", "username", "password", "email"}

// Payload is the decoded response body of the user API.
type Payload struct {
	Results []RawUserRecord `json:"results"`
}

// RawUserRecord is one element of Payload.Results. Nested objects are
// pointers so a missing object is distinguishable from an empty one.
type RawUserRecord struct {
	Name     *Name     `json:"name"`
	Location *Location `json:"location"`
	Login    *Login    `json:"login"`
	Email    Field     `json:"email"`
}

type Name struct {
	First Field `json:"first"`
	Last  Field `json:"last"`
}

type Location struct {
	Country Field `json:"country"`
}

type Login struct {
	Username Field `json:"username"`
	Password Field `json:"password"`
}

// Field is a scalar JSON value whose presence is tracked. Strings keep their
// value; numbers, booleans and nested values keep their raw JSON text; an
// explicit null is present and renders as "".
type Field struct {
	Value string
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler. It is also called for an
// explicit null, which marks the field as present.
func (f *Field) UnmarshalJSON(b []byte) error {
	f.Set = true
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		f.Value = ""
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &f.Value)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		f.Value = buf.String()
	}
	return nil
}

// Str is a helper for building records in code and tests.
func Str(s string) Field { return Field{Value: s, Set: true} }

// FlatUserRow is the flattened user in destination column order.
type FlatUserRow struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Country   string `json:"country"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
}

// Values returns the row's fields in Columns order.
func (r FlatUserRow) Values() []string {
	return []string{r.Firstname, r.Lastname, r.Country, r.Username, r.Password, r.Email}
}

// Decode parses a raw response body into a Payload. A body that is valid
// JSON but not an object (e.g. "[]" or "null") decodes to an empty Payload
// and is rejected later by Transform.
func Decode(body []byte) (Payload, error) {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return Payload{}, fmt.Errorf("decode user payload: %w", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("decode user payload: %w", err)
	}
	return p, nil
}

// Transform projects the first result of p into a FlatUserRow.
func Transform(p Payload) (FlatUserRow, error) {
	if len(p.Results) == 0 {
		return FlatUserRow{}, &EmptyResultError{}
	}
	return flatten(p.Results[0])
}

func flatten(u RawUserRecord) (FlatUserRow, error) {
	var row FlatUserRow

	if u.Name == nil {
		return row, &MissingFieldError{Path: "name"}
	}
	if u.Location == nil {
		return row, &MissingFieldError{Path: "location"}
	}
	if u.Login == nil {
		return row, &MissingFieldError{Path: "login"}
	}

	fields := []struct {
		path string
		src  Field
		dst  *string
	}{
		{"name.first", u.Name.First, &row.Firstname},
		{"name.last", u.Name.Last, &row.Lastname},
		{"location.country", u.Location.Country, &row.Country},
		{"login.username", u.Login.Username, &row.Username},
		{"login.password", u.Login.Password, &row.Password},
		{"email", u.Email, &row.Email},
	}
	for _, f := range fields {
		if !f.src.Set {
			return FlatUserRow{}, &MissingFieldError{Path: f.path}
		}
		*f.dst = f.src.Value
	}
	return row, nil
}
