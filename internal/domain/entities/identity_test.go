package entities

import "testing"

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"  user@example.com  ", "user@example.com"},
		{"user@example.com", "user@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeIdentity(tt.in); got != tt.want {
			t.Errorf("NormalizeIdentity(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestValidIdentity(t *testing.T) {
	valid := []string{"user@example.com", "a@b", "first.last+tag@sub.example.org"}
	for _, id := range valid {
		if !ValidIdentity(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@leading.at",
		"trailing.at@",
		"has space@example.com",
		string(make([]byte, 255)) + "@x",
	}
	for _, id := range invalid {
		if ValidIdentity(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}
