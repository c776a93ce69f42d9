package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                     "/",
		"/metrics":                             "/metrics",
		"/api/v1/leads":                        "/api/v1/leads",
		"/api/v1/leads/abc":                    "/api/v1/leads/:id",
		"/api/v1/leads/abc/activities":         "/api/v1/leads/:id/activities",
		"/api/v1/activities/abc":               "/api/v1/activities/:id",
		"/api/v1/notifications":                "/api/v1/notifications",
		"/api/v1/notifications/abc/read":       "/api/v1/notifications/:id/read",
		"/api/v1/notifications/read-all":       "/api/v1/notifications/read-all",
		"/api/v1/leads?status=new":             "/api/v1/leads",
		"/api/v1/leads/abc/activities/nested":  "/api/v1/leads/abc/activities/nested",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
