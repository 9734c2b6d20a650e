package dialogue

import (
	"math"
	"testing"

	"github.com/BTreeMap/LeadPipe/internal/flow"
)

func TestFirstNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"8000", 8000, true},
		{"about 7500 aed", 7500, true},
		{"aed 12,000", 12, true},
		{"between 6000 and 9000", 6000, true},
		{"٧٥٠٠ درهم", 7500, true},
		{"راتبي ۸۰۰۰", 8000, true},
		{"१२००० rupees", 12000, true},
		{"99999999999999999999 aed", math.MaxInt, true},
		{"no idea", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := firstNumber(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("firstNumber(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestContainsAny(t *testing.T) {
	keywords := []string{"yes", "sure"}
	for _, in := range []string{"yes", "yes please", "for sure"} {
		if !containsAny(normalize(in), keywords) {
			t.Errorf("expected %q to match", in)
		}
	}
	if containsAny("maybe later", keywords) {
		t.Error("unexpected match")
	}
	if containsAny("anything", []string{""}) {
		t.Error("empty keyword must never match")
	}
}

func TestQualifies(t *testing.T) {
	minimum := 5000
	rules := []flow.Rule{
		{Field: "employment_type", Allowed: []string{"salaried", "self-employed"}},
		{Field: "monthly_income", Minimum: &minimum},
		{Field: "residency_status", Allowed: []string{"uae_national", "expatriate"}},
	}
	base := func() map[string]string {
		return map[string]string{
			"employment_type":  "salaried",
			"monthly_income":   "8000",
			"residency_status": "expatriate",
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   bool
	}{
		{"all rules pass", func(map[string]string) {}, true},
		{"exact minimum", func(d map[string]string) { d["monthly_income"] = "5000" }, true},
		{"below minimum", func(d map[string]string) { d["monthly_income"] = "4999" }, false},
		{"unparseable income", func(d map[string]string) { d["monthly_income"] = "lots" }, false},
		{"missing field", func(d map[string]string) { delete(d, "residency_status") }, false},
		{"value not allowed", func(d map[string]string) { d["employment_type"] = "student" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := base()
			tt.mutate(data)
			if got := Qualifies(rules, data); got != tt.want {
				t.Errorf("Qualifies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 10); got != "héllo" {
		t.Errorf("short input changed: %q", got)
	}
	if got := truncateRunes("héllo world", 5); got != "héllo" {
		t.Errorf("truncateRunes() = %q", got)
	}
}
