package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tillgate/tillgate/pkg/tenant"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "acme"},
		{"spaces", "Acme Payments", "acme-payments"},
		{"punctuation runs", "Acme -- Payments, Inc.", "acme-payments-inc"},
		{"leading and trailing junk", "  ~Acme~  ", "acme"},
		{"digits kept", "Branch 42", "branch-42"},
		{"nothing usable", "!!!", ""},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tenant.Slugify(tc.in))
		})
	}
}

func TestDisambiguate(t *testing.T) {
	taken := map[string]bool{
		"acme-colombo":   true,
		"acme-colombo-2": true,
	}

	assert.Equal(t, "acme-kandy", tenant.Disambiguate("acme-kandy", taken))
	assert.Equal(t, "acme-colombo-3", tenant.Disambiguate("acme-colombo", taken))
	assert.Equal(t, "acme", tenant.Disambiguate("acme", nil))
}

func TestBranchUsername(t *testing.T) {
	assert.Equal(t, "acme-colombo", tenant.BranchUsername("acme", "colombo"))
}
