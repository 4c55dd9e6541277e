package domain

import (
	"reflect"
	"testing"
)

func TestParseManifestLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   ManifestEntry
		wantOK bool
	}{
		{
			name:   "breed with colors",
			line:   "Husky: Black, White, Gray",
			want:   ManifestEntry{BreedName: "Husky", Colors: []string{"Black", "White", "Gray"}},
			wantOK: true,
		},
		{
			name:   "splits on first colon only",
			line:   "Odd: Red: Tan, Blue",
			want:   ManifestEntry{BreedName: "Odd", Colors: []string{"Red: Tan", "Blue"}},
			wantOK: true,
		},
		{
			name:   "breed without colors",
			line:   "  Border Collie  ",
			want:   ManifestEntry{BreedName: "Border Collie"},
			wantOK: true,
		},
		{
			name:   "empties dropped",
			line:   "Poodle: , White,,  Apricot ",
			want:   ManifestEntry{BreedName: "Poodle", Colors: []string{"White", "Apricot"}},
			wantOK: true,
		},
		{name: "blank", line: "   ", wantOK: false},
		{name: "missing breed", line: ": Black", wantOK: false},
		{name: "missing colors", line: "Husky:  , ", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseManifestLine(tc.line)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseManifestLine(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseManifestMergesDuplicates(t *testing.T) {
	text := "Husky: Black\n\nBeagle\nhusky: Black, Tan\n"
	got := ParseManifest(text)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].BreedName != "Husky" || !reflect.DeepEqual(got[0].Colors, []string{"Black", "Tan"}) {
		t.Fatalf("unexpected husky entry: %+v", got[0])
	}
	if got[1].BreedName != "Beagle" || len(got[1].Colors) != 0 {
		t.Fatalf("unexpected beagle entry: %+v", got[1])
	}
}

func TestMergeColorsUnion(t *testing.T) {
	got := MergeColors([]string{"Black"}, []string{"Black", "Tan"})
	if want := []string{"Black", "Tan"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeColors = %v, want %v", got, want)
	}
	got = MergeColors([]string{"Black", "Tan"}, []string{"tan", " Cream "})
	if want := []string{"Black", "Tan", "Cream"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeColors case-insensitive = %v, want %v", got, want)
	}
}

func TestExportManifestSkipsEmpty(t *testing.T) {
	records := []BreedRecord{
		{BreedName: "Husky", Colors: []string{"Black", "White"}},
		{BreedName: "Poodle"},
	}
	if got := ExportManifest(records); got != "Husky: Black, White" {
		t.Fatalf("ExportManifest = %q", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	records := []BreedRecord{
		{BreedName: "German Shepherd", Colors: []string{"Black and Tan", "Sable"}},
		{BreedName: "Husky", Colors: []string{"Black", "White"}},
	}
	entries := ParseManifest(ExportManifest(records))
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	for i, e := range entries {
		if e.BreedName != records[i].BreedName || !reflect.DeepEqual(e.Colors, records[i].Colors) {
			t.Fatalf("entry %d = %+v, want %+v", i, e, records[i])
		}
	}
}
