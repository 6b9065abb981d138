package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ID identifies rides, users and drivers. The backend sends them either as
// strings or as integers; both decode to the same ID.
type ID string

var ErrInvalidID = errors.New("id must be a string or an integer")

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidID
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return ErrInvalidID
	}
	if _, err := n.Int64(); err != nil {
		return ErrInvalidID
	}
	*id = ID(n.String())
	return nil
}
