package refs

import "testing"

func TestValidateName(t *testing.T) {
	valid := []Name{
		"HEAD",
		"refs/heads/main",
		"refs/heads/feature/deeply/nested",
		"refs/tags/v1.0.0",
		"refs/remotes/origin/main",
		"refs/heads/with@at",
	}
	for _, n := range valid {
		if err := ValidateName(n); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", n, err)
		}
	}

	invalid := []Name{
		"",
		"@",
		"/refs/heads/main",
		"refs/heads/main/",
		"refs/heads/main.",
		"refs/heads/a..b",
		"refs/heads//main",
		"refs/heads/a@{b",
		"refs/heads/a\\b",
		"refs/heads/a b",
		"refs/heads/a\tb",
		"refs/heads/main.lock",
		"refs/heads.lock/main",
	}
	for _, n := range invalid {
		if err := ValidateName(n); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", n)
		}
	}
}
