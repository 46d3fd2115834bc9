package dispatch

import "testing"

func TestMatchDriver(t *testing.T) {
	roster := []Driver{
		{ID: "d1", FullName: "Trần Văn Bình", Source: DriverInternal},
		{ID: "d2", FullName: "Nguyễn Văn Tuyến", Source: DriverInternal},
		{ID: "d3", FullName: "Nguyễn Hoàng Phúc", ShortName: "A Phúc", Source: DriverExternal},
		{ID: "d4", FullName: "Lê Đức Anh", Source: DriverInternal},
	}

	tests := []struct {
		name     string
		fragment string
		wantID   string
		wantOK   bool
	}{
		{
			name:     "calling name with honorific",
			fragment: "A Tuyến",
			wantID:   "d2",
			wantOK:   true,
		},
		{
			name:     "lowercase fragment",
			fragment: "a tuyến",
			wantID:   "d2",
			wantOK:   true,
		},
		{
			name:     "fragment contained in full name",
			fragment: "Văn Bình",
			wantID:   "d1",
			wantOK:   true,
		},
		{
			name:     "short name calling name",
			fragment: "Phúc xe mới",
			wantID:   "d3",
			wantOK:   true,
		},
		{
			name:     "full name exact",
			fragment: "Nguyễn Hoàng Phúc",
			wantID:   "d3",
			wantOK:   true,
		},
		{
			name:     "no roster entry",
			fragment: "A Vụ",
			wantOK:   false,
		},
		{
			name:     "empty fragment",
			fragment: "",
			wantOK:   false,
		},
		{
			name:     "whitespace fragment",
			fragment: "   ",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchDriver(tt.fragment, roster)

			if ok != tt.wantOK {
				t.Fatalf("MatchDriver(%q) ok = %v, want %v", tt.fragment, ok, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("MatchDriver(%q) = %s (%s), want %s",
					tt.fragment, got.ID, got.FullName, tt.wantID)
			}
		})
	}
}

// Two drivers answer to the same given name; roster order breaks the tie.
func TestMatchDriver_FirstMatchWins(t *testing.T) {
	roster := []Driver{
		{ID: "d1", FullName: "Lê Văn Tuyến"},
		{ID: "d2", FullName: "Nguyễn Văn Tuyến"},
	}

	got, ok := MatchDriver("A Tuyến", roster)
	if !ok {
		t.Fatal("MatchDriver found no driver")
	}
	if got.ID != "d1" {
		t.Errorf("MatchDriver = %s, want first roster entry d1", got.ID)
	}
}

func TestMatchDriver_EmptyRoster(t *testing.T) {
	if _, ok := MatchDriver("A Tuyến", nil); ok {
		t.Error("MatchDriver on empty roster reported a match")
	}
}
