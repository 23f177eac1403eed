package model

// Collision records a later occurrence of an id whose attributes differ from the kept one
type Collision struct {
	ID        string    `json:"id"`
	KeptFrom  StateCode `json:"kept_from"`
	DroppedIn StateCode `json:"dropped_in"`
	Diff      string    `json:"diff,omitempty"`
}

// Dataset is the deduplicated collection produced by one run. Records are in first-seen
// order; ids are unique.
type Dataset struct {
	Records    []Record
	Collisions []Collision
	index      map[string]int
}

// NewDataset builds a dataset over records that are already unique by id
func NewDataset(records []Record, collisions []Collision) *Dataset {
	d := &Dataset{
		Records:    records,
		Collisions: collisions,
		index:      make(map[string]int, len(records)),
	}
	for i, r := range records {
		d.index[r.ID] = i
	}
	return d
}

// Len returns the number of unique records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Get looks a record up by id
func (d *Dataset) Get(id string) (Record, bool) {
	i, ok := d.index[id]
	if !ok {
		return Record{}, false
	}
	return d.Records[i], true
}
