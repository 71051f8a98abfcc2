package utils

import "testing"

func TestFormatPhoneNumber(t *testing.T) {
	t.Setenv("DEFAULT_COUNTRY_CODE", "1")

	cases := []struct {
		in   string
		want string
	}{
		{"(514) 555-0142", "15145550142"},
		{"+1 514 555 0142", "15145550142"},
		{"0514-555-0142", "15145550142"},
		{"15145550142", "15145550142"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatPhoneNumber(tc.in); got != tc.want {
			t.Errorf("FormatPhoneNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	t.Setenv("DEFAULT_COUNTRY_CODE", "1")

	valid := []string{"514-555-0142", "+1 514 555 0142", "5550142"}
	for _, p := range valid {
		if !ValidatePhoneNumber(p) {
			t.Errorf("ValidatePhoneNumber(%q) = false, want true", p)
		}
	}

	invalid := []string{"", "123", "123456789012345678"}
	for _, p := range invalid {
		if ValidatePhoneNumber(p) {
			t.Errorf("ValidatePhoneNumber(%q) = true, want false", p)
		}
	}
}
