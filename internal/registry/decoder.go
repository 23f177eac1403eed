package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/rnpdno/internal/model"
)

// Decoder turns registry response bodies into pages and state catalogs.
// The registry schema is not fixed, so the client takes the decoder as a dependency.
type Decoder interface {
	DecodePage(body []byte, state model.StateCode, cursor string) (*model.Page, error)
	DecodeStates(body []byte) ([]model.State, error)
}

// JSONDecoder decodes the JSON page envelope:
//
//	{"records": [...], "has_more": true, "next_cursor": "...", "total": 250, "page": 1, "page_size": 100, "error": ""}
//
// Whichever pagination signal is present is authoritative, checked in the order
// has_more, next_cursor, total, even on a page with no records. A page without any
// signal is the only page.
type JSONDecoder struct {
	IDField  string
	PageSize int // Used for count-based pagination when the response omits page_size
}

type pageEnvelope struct {
	Records    []map[string]any `json:"records"`
	HasMore    *bool            `json:"has_more"`
	NextCursor *string          `json:"next_cursor"`
	Total      *int             `json:"total"`
	Page       *int             `json:"page"`
	PageSize   *int             `json:"page_size"`
	Error      string           `json:"error"`
}

// DecodePage decodes one page of records for state
func (d JSONDecoder) DecodePage(body []byte, state model.StateCode, cursor string) (*model.Page, error) {
	var env pageEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, &RegistryError{Message: env.Error}
	}

	idField := d.IDField
	if idField == "" {
		idField = "id"
	}

	page := &model.Page{
		Records: make([]model.Record, 0, len(env.Records)),
		Total:   -1,
	}
	for i, raw := range env.Records {
		id, err := recordID(raw[idField])
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("record %d: field %q: %w", i, idField, err)}
		}
		attrs := make(map[string]any, len(raw))
		for k, v := range raw {
			if k != idField {
				attrs[k] = v
			}
		}
		page.Records = append(page.Records, model.Record{ID: id, State: state, Attributes: attrs})
	}
	if env.Total != nil {
		page.Total = *env.Total
	}

	current, err := pageIndex(env.Page, cursor)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch {
	case env.HasMore != nil:
		page.HasMore = *env.HasMore
		if page.HasMore {
			next, err := nextCursor(env.NextCursor, current)
			if err != nil {
				return nil, &DecodeError{Err: err}
			}
			page.Next = next
		}
	case env.NextCursor != nil:
		page.Next = *env.NextCursor
		page.HasMore = page.Next != ""
	case env.Total != nil:
		size := d.PageSize
		if env.PageSize != nil && *env.PageSize > 0 {
			size = *env.PageSize
		}
		if size <= 0 {
			return nil, &DecodeError{Err: errors.New("count-based pagination without a page size")}
		}
		if current == 0 {
			return nil, &DecodeError{Err: errors.New("count-based pagination with an opaque cursor")}
		}
		page.HasMore = current*size < *env.Total
		if page.HasMore {
			page.Next = strconv.Itoa(current + 1)
		}
	}

	return page, nil
}

// expectEOF rejects anything but whitespace after the first JSON value
func expectEOF(dec *json.Decoder) error {
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return &DecodeError{Err: err}
	}
	return nil
}

// nextCursor prefers the registry's cursor and otherwise advances the page index
func nextCursor(reported *string, current int) (string, error) {
	if reported != nil && *reported != "" {
		return *reported, nil
	}
	if current == 0 {
		return "", errors.New("has_more without next_cursor after an opaque cursor")
	}
	return strconv.Itoa(current + 1), nil
}

// pageIndex returns the 1-based index of the page just fetched, or 0 for an opaque cursor
func pageIndex(reported *int, cursor string) (int, error) {
	if reported != nil {
		return *reported, nil
	}
	if cursor == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil {
		// Opaque cursors carry no index; only cursor or flag signals apply then.
		return 0, nil
	}
	if n < 1 {
		return 0, fmt.Errorf("cursor %q is not a valid page index", cursor)
	}
	return n, nil
}

func recordID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", errors.New("missing")
	case json.Number:
		return id.String(), nil
	case string:
		if s := strings.TrimSpace(id); s != "" {
			return s, nil
		}
		return "", errors.New("empty")
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

type stateEntry struct {
	ID     any    `json:"id"`
	Code   any    `json:"code"`
	Name   string `json:"name"`
	Nombre string `json:"nombre"`
}

// DecodeStates accepts either a bare array or {"states": [...]} of {id|code, name|nombre}
func (d JSONDecoder) DecodeStates(body []byte) ([]model.State, error) {
	var entries []stateEntry
	trimmed := bytes.TrimSpace(body)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			States []stateEntry `json:"states"`
		}
		if err := dec.Decode(&wrapped); err != nil {
			return nil, &DecodeError{Err: err}
		}
		entries = wrapped.States
	} else if err := dec.Decode(&entries); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}

	states := make([]model.State, 0, len(entries))
	seen := make(map[model.StateCode]bool, len(entries))
	for i, e := range entries {
		key := e.Code
		if key == nil {
			key = e.ID
		}
		raw, err := recordID(key)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("state %d: code: %w", i, err)}
		}
		code, err := model.ParseStateCode(raw)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("state %d: %w", i, err)}
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		name := e.Name
		if name == "" {
			name = e.Nombre
		}
		states = append(states, model.State{Code: code, Name: name})
	}
	return states, nil
}
