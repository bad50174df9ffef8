package domain

// GroupRule declares a demand for hosts: Count hosts for every tag in Tags,
// drawn in declaration order from the service's host pool. Rules within one
// service share a single pool, so rule order is significant.
type GroupRule struct {
	Tags  []string `json:"tags" yaml:"tags"`
	Count int      `json:"count" yaml:"count"`
}

// HostEntry pins one host to the infrastructure target it was provisioned on.
type HostEntry struct {
	Host   string `json:"host"`
	Target string `json:"target"`
}

// GroupAssignment maps a group tag to its member hosts in assignment order.
// It is the only durable artifact of a reconciliation pass: the assignment is
// read from the stack instance, optionally recomputed in full, and written
// back wholesale. It is never patched incrementally.
type GroupAssignment map[string][]HostEntry

// Clone returns a deep copy of the assignment.
func (a GroupAssignment) Clone() GroupAssignment {
	if a == nil {
		return nil
	}
	out := make(GroupAssignment, len(a))
	for tag, entries := range a {
		cp := make([]HostEntry, len(entries))
		copy(cp, entries)
		out[tag] = cp
	}
	return out
}
