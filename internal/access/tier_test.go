package access

import "testing"

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		"free":      Free,
		"BASIC":     Basic,
		" Premium ": Premium,
		"pro":       Pro,
		"":          Free,
		"gold":      Free,
	}
	for in, want := range cases {
		if got := ParseTier(in); got != want {
			t.Fatalf("ParseTier(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestAuthorizeIsMonotonic(t *testing.T) {
	tiers := []Tier{Free, Basic, Premium, Pro}
	for _, required := range tiers {
		for i, tier := range tiers {
			if !Authorize(tier, required) {
				continue
			}
			for _, higher := range tiers[i:] {
				if !Authorize(higher, required) {
					t.Fatalf("%s allowed %s but %s was denied", tier, required, higher)
				}
			}
		}
	}
}

func TestAuthorizeTable(t *testing.T) {
	if Authorize(Free, Basic) {
		t.Fatalf("free must not receive basic data")
	}
	if !Authorize(Basic, Basic) || !Authorize(Pro, Basic) {
		t.Fatalf("basic and pro must receive basic data")
	}
	if !AuthorizeName("unknown", "free") {
		t.Fatalf("unknown tier must still receive free data")
	}
	if AuthorizeName("unknown", "basic") {
		t.Fatalf("unknown tier must be treated as free")
	}
	if Authorize(Tier(42), Basic) {
		t.Fatalf("out of range tier must be treated as free")
	}
}

func TestRequirement(t *testing.T) {
	if Requirement(FeaturePrice) != Free || Requirement(FeatureCandles) != Basic {
		t.Fatalf("unexpected requirement table")
	}
	if Requirement(FeatureAPIAccess) != Pro || Requirement("nope") != Pro {
		t.Fatalf("api access and unknown features must require pro")
	}
}
