package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

const (
	partPrograms = iota
	partFieldIDs
	partCatalogIDs
	partLinked

	requiredParts = 3
)

// Dictionaries is the decoded index file.
//
// On disk it is a JSON array [programs, fieldIDs, catalogIDs] with an optional
// fourth element holding linked catalog IDs:
//
//	programs:   {"bhm_rm": [15171, 15172, "all"], ...}
//	fieldIDs:   {"15171": [4350951054, ...], "bhm_rm-all": [...], ...}
//	catalogIDs: {"4350951054": [[15171, 59281, 12.3, 59281.21], ...], ...}
//	linked:     {"4350951054": [27021600949438682], ...}
type Dictionaries struct {
	Programs   map[string][]string
	FieldIDs   map[string][]string
	CatalogIDs map[string][]Epoch
	Linked     map[string][]string
}

// Decode reads a dictionaries file.
func Decode(r io.Reader) (*Dictionaries, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var parts []json.RawMessage
	if err := decoder.Decode(&parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedIndex, err)
	}

	if len(parts) < requiredParts {
		return nil, fmt.Errorf("%w: expected at least %d elements, got %d", ErrMalformedIndex, requiredParts, len(parts))
	}

	d := &Dictionaries{}

	var err error

	if d.Programs, err = decodeLists(parts[partPrograms]); err != nil {
		return nil, fmt.Errorf("%w: programs: %w", ErrMalformedIndex, err)
	}

	if d.FieldIDs, err = decodeLists(parts[partFieldIDs]); err != nil {
		return nil, fmt.Errorf("%w: field ids: %w", ErrMalformedIndex, err)
	}

	if err := json.Unmarshal(parts[partCatalogIDs], &d.CatalogIDs); err != nil {
		return nil, fmt.Errorf("%w: catalog ids: %w", ErrMalformedIndex, err)
	}

	if len(parts) > partLinked {
		if d.Linked, err = decodeLists(parts[partLinked]); err != nil {
			return nil, fmt.Errorf("%w: linked: %w", ErrMalformedIndex, err)
		}
	}

	return d, nil
}

// ReadFile decodes the dictionaries file at path.
func ReadFile(path string) (*Dictionaries, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog index: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	return Decode(f)
}

// Encode writes d in the on-disk form read by Decode.
func (d *Dictionaries) Encode(w io.Writer) error {
	parts := []interface{}{d.Programs, d.FieldIDs, d.CatalogIDs}
	if len(d.Linked) > 0 {
		parts = append(parts, d.Linked)
	}

	return json.NewEncoder(w).Encode(parts)
}

// ProgramNames returns the program names in sorted order.
func (d *Dictionaries) ProgramNames() []string {
	names := make([]string, 0, len(d.Programs))
	for name := range d.Programs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// decodeLists decodes an object of arrays whose elements are numbers or
// strings, keeping numbers in their literal spelling.
func decodeLists(raw json.RawMessage) (map[string][]string, error) {
	var generic map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	lists := make(map[string][]string, len(generic))

	for key, values := range generic {
		list := make([]string, 0, len(values))

		for _, v := range values {
			s, err := scalarString(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			list = append(list, s)
		}

		lists[key] = list
	}

	return lists, nil
}

func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)

	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}

		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("expected number or string, got %s", v)
	}

	return n.String(), nil
}
