package partition

import "testing"

func TestDeriveKey(t *testing.T) {
	cases := []struct {
		name      string
		baseURL   string
		companyID string
		want      string
	}{
		{
			name:      "environment segment",
			baseURL:   "https://erp.example.com/demoenv/api/v1",
			companyID: "DEMO",
			want:      "demoenv_DEMO",
		},
		{
			name:      "skips api and version segments",
			baseURL:   "https://erp.example.com/api/v2",
			companyID: "ACME",
			want:      "default_ACME",
		},
		{
			name:      "host only",
			baseURL:   "https://erp.example.com",
			companyID: "CN01",
			want:      "default_CN01",
		},
		{
			name:      "unparseable url falls back",
			baseURL:   "not a url",
			companyID: "X",
			want:      "default_X",
		},
		{
			name:      "empty url falls back",
			baseURL:   "",
			companyID: "Y",
			want:      "default_Y",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveKey(tc.baseURL, tc.companyID)
			if got != tc.want {
				t.Fatalf("DeriveKey(%q, %q) = %q, want %q", tc.baseURL, tc.companyID, got, tc.want)
			}
		})
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	first := DeriveKey("https://erp.example.com/prod/api/v1", "CN01")
	for i := 0; i < 100; i++ {
		if got := DeriveKey("https://erp.example.com/prod/api/v1", "CN01"); got != first {
			t.Fatalf("derivation not deterministic: %q vs %q", got, first)
		}
	}
}
