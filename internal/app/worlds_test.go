package app

import (
	"testing"

	"github.com/google/uuid"

	"claims-go/internal/config"
)

const overworldID = "11111111-1111-4111-8111-111111111111"

func TestStaticWorlds(t *testing.T) {
	w, err := NewStaticWorlds([]config.WorldConfig{
		{Name: "world", ID: overworldID},
		{Name: "world_nether", ID: "22222222-2222-4222-8222-222222222222"},
	})
	if err != nil {
		t.Fatalf("NewStaticWorlds() error = %v", err)
	}
	overworld := uuid.MustParse(overworldID)

	tests := []struct {
		name    string
		input   string
		want    uuid.UUID
		wantErr bool
	}{
		{name: "by name", input: "world", want: overworld},
		{name: "by id", input: overworldID, want: overworld},
		{name: "unknown name", input: "world_the_end", wantErr: true},
		{name: "unknown id", input: uuid.NewString(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Resolve(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if !w.WorldExists(overworld) || w.WorldExists(uuid.New()) {
		t.Error("WorldExists() wrong")
	}
	if w.Name(overworld) != "world" {
		t.Errorf("Name() = %q", w.Name(overworld))
	}
}

func TestNewStaticWorlds_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []config.WorldConfig
	}{
		{name: "bad id", entries: []config.WorldConfig{{Name: "world", ID: "nope"}}},
		{name: "duplicate name", entries: []config.WorldConfig{{Name: "world", ID: overworldID}, {Name: "world", ID: uuid.NewString()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticWorlds(tt.entries); err == nil {
				t.Error("NewStaticWorlds() succeeded")
			}
		})
	}
}
