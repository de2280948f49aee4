package cmd

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Build X":                       "build-x",
		"  Build   a CRM!  ":            "build-a-crm",
		"auth & billing (v2)":           "auth-billing-v2",
		"":                              "project",
		"!!!":                           "project",
		"Ship the AI-powered dashboard": "ship-the-ai-powered-dashboard",
	}
	for input, want := range cases {
		if got := slugify(input); got != want {
			t.Errorf("slugify(%q) = %q, want %q", input, got, want)
		}
	}
}
