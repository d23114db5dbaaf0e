package rules

import "fmt"

// Describe renders the human message for a violation of a rule with the given
// body. fallback is used for kinds without a dedicated message.
func Describe(b Body, r Record, fallback string) string {
	switch b.(type) {
	case GradeRange:
		if _, ok := r.Int("grade_level"); !ok {
			return "Grade level missing"
		}
		return fmt.Sprintf("Grade level %s outside configured range", r.Text("grade_level"))
	case EnrollmentStatus:
		return fmt.Sprintf("Unexpected enrollment status: %s", r.Text("enrollment_status"))
	}
	return fallback
}
