package device

// Table is the canonical device table: one Record per physical GPU, indexed
// by canonical index. It is built once by Reconcile and owned by the
// monitoring loop afterwards.
type Table struct {
	records []*Record
}

// Records returns the records in canonical index order. The slice is the
// table's own backing store; callers iterate it, they do not reorder it.
func (t *Table) Records() []*Record {
	return t.records
}

// Len returns the number of devices in the table.
func (t *Table) Len() int {
	return len(t.records)
}

// ManagedCount returns the number of managed devices.
func (t *Table) ManagedCount() int {
	n := 0
	for _, rec := range t.records {
		if rec.Managed {
			n++
		}
	}
	return n
}

// MarkManaged marks the selected canonical indices as managed. An empty
// selection marks every device. Out-of-range ids are returned so the caller
// can report them; they do not fail the call.
//
// ErrNoManagedDevices is returned when the selection leaves no device
// managed.
func (t *Table) MarkManaged(ids []int) (invalid []int, err error) {
	if len(ids) == 0 {
		for _, rec := range t.records {
			rec.Managed = true
		}
	} else {
		for _, id := range ids {
			if id < 0 || id >= len(t.records) {
				invalid = append(invalid, id)
				continue
			}
			t.records[id].Managed = true
		}
	}

	if t.ManagedCount() == 0 {
		return invalid, ErrNoManagedDevices
	}
	return invalid, nil
}
