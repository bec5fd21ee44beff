package registry

import "testing"

func metadataWith(versions ...string) *Metadata {
	m := &Metadata{}
	for _, v := range versions {
		m.Versions = append(m.Versions, PackageVersion{Package: Package{Name: "a/b", Version: v}})
	}
	return m
}

func TestMetadata_LatestVersion(t *testing.T) {
	tests := []struct {
		versions []string
		want     string
	}{
		{[]string{"1.0.0", "2.0.0", "1.5.0"}, "2.0.0"},
		{[]string{"2.0.0-alpha", "1.9.9"}, "2.0.0-alpha"},
		{[]string{"2.0.0-alpha", "2.0.0"}, "2.0.0"},
		{[]string{"not-a-version", "0.1.0"}, "0.1.0"},
		{[]string{"1.0.0"}, "1.0.0"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := metadataWith(tt.versions...).LatestVersion(); got != tt.want {
			t.Errorf("LatestVersion(%v) = %q, want %q", tt.versions, got, tt.want)
		}
	}
}

func TestMetadata_Find(t *testing.T) {
	m := metadataWith("1.0.0", "v1.0.0", "1.2.0")

	pv, ok := m.Find("v1.0.0")
	if !ok || pv.Version() != "v1.0.0" {
		t.Errorf("Find(v1.0.0) = %v, %v; exact match should win", pv, ok)
	}

	pv, ok = m.Find("1.2")
	if !ok || pv.Version() != "1.2.0" {
		t.Errorf("Find(1.2) = %v, %v; semver-equal match expected", pv, ok)
	}

	if _, ok := m.Find("3.0.0"); ok {
		t.Error("Find(3.0.0) should fail")
	}
	if m.HasVersion("3.0.0") {
		t.Error("HasVersion(3.0.0) should be false")
	}
	if !m.HasVersion("1.0.0") {
		t.Error("HasVersion(1.0.0) should be true")
	}
}

func TestMetadata_VersionStrings(t *testing.T) {
	got := metadataWith("1.0.0", "0.1.0").VersionStrings()
	if len(got) != 2 || got[0] != "1.0.0" || got[1] != "0.1.0" {
		t.Errorf("VersionStrings() = %v", got)
	}
}

func TestPackageVersion_NameParts(t *testing.T) {
	tests := []struct {
		name       string
		wantAuthor string
		wantShort  string
	}{
		{"roblox/roact", "roblox", "roact"},
		{"noscope", "noscope", "noscope"},
		{"", "", ""},
	}

	for _, tt := range tests {
		pv := PackageVersion{Package: Package{Name: tt.name}}
		if got := pv.Author(); got != tt.wantAuthor {
			t.Errorf("Author(%q) = %q, want %q", tt.name, got, tt.wantAuthor)
		}
		if got := pv.ShortName(); got != tt.wantShort {
			t.Errorf("ShortName(%q) = %q, want %q", tt.name, got, tt.wantShort)
		}
	}
}

func TestRealm_IsKnown(t *testing.T) {
	for _, r := range []Realm{RealmShared, RealmServer, RealmDev} {
		if !r.IsKnown() {
			t.Errorf("%q should be known", r)
		}
	}
	if Realm("client").IsKnown() {
		t.Error(`"client" should not be known`)
	}
}

func TestPackageInfo_HasAuthors(t *testing.T) {
	info := PackageInfo{}
	if info.HasAuthors() {
		t.Error("empty info should have no authors")
	}
	info.Package.Authors = []string{"Jane <jane@example.com>"}
	if !info.HasAuthors() {
		t.Error("info with authors should report them")
	}
}
