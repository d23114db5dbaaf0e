package rules

// Violation is one record that failed a predicate.
type Violation struct {
	EntityID string
	SchoolID string
	Snapshot Record
}

// Evaluate applies pred to every record in order and returns the failures.
// Records are identified by their "id" field and grouped by "school_id".
func Evaluate(pred Predicate, records []Record) []Violation {
	var out []Violation
	for _, r := range records {
		if pred.Passes(r) {
			continue
		}
		out = append(out, Violation{
			EntityID: r.Text("id"),
			SchoolID: r.Text("school_id"),
			Snapshot: r,
		})
	}
	return out
}
