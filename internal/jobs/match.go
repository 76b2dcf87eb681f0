package jobs

// Supersedes reports whether the authoritative candidate is the server's
// version of the placeholder: the names match (the placeholder's display name
// or the uploaded file name, since the backend names records after the file)
// and the candidate was not created before the placeholder.
func Supersedes(candidate, placeholder Record) bool {
	if !candidate.ID.IsAuthoritative() || !placeholder.ID.IsSynthetic() {
		return false
	}
	if !nameMatches(candidate.DisplayName, placeholder) {
		return false
	}
	return !candidate.CreatedAt.Before(placeholder.CreatedAt)
}

// Correlates extends Supersedes with the server id from the acceptance
// acknowledgment: when the placeholder knows it, an id match wins outright.
func Correlates(candidate, placeholder Record) bool {
	if !candidate.ID.IsAuthoritative() || !placeholder.ID.IsSynthetic() {
		return false
	}
	if placeholder.ExpectedID != "" {
		return candidate.ID.String() == placeholder.ExpectedID
	}
	return Supersedes(candidate, placeholder)
}

func nameMatches(name string, placeholder Record) bool {
	if name == "" {
		return false
	}
	return name == placeholder.DisplayName || (placeholder.SourceName != "" && name == placeholder.SourceName)
}
