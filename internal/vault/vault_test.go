package vault

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"claims-go/internal/archive"
)

// testVault runs the behavior every archive.Vault must share.
func testVault(t *testing.T, v archive.Vault) {
	t.Helper()
	ctx := context.Background()

	t.Run("stores and retrieves snapshots", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{name: "claims-20240115T103000.000Z.snap", content: "hello world"},
			{name: "claims-20240115T113000.000Z.snap", content: ""},
			{name: "claims-20240116T000000.000Z.snap", content: strings.Repeat("x", 100000)},
		}
		for _, tt := range tests {
			if err := v.PutSnapshot(ctx, tt.name, strings.NewReader(tt.content)); err != nil {
				t.Fatalf("PutSnapshot(%s) error = %v", tt.name, err)
			}
		}
		for _, tt := range tests {
			var buf bytes.Buffer
			if err := v.GetSnapshot(ctx, tt.name, &buf); err != nil {
				t.Fatalf("GetSnapshot(%s) error = %v", tt.name, err)
			}
			if buf.String() != tt.content {
				t.Errorf("GetSnapshot(%s) returned %d bytes, want %d", tt.name, buf.Len(), len(tt.content))
			}
		}

		names, err := v.ListSnapshots(ctx)
		if err != nil {
			t.Fatalf("ListSnapshots() error = %v", err)
		}
		want := []string{tests[0].name, tests[1].name, tests[2].name}
		if !slices.Equal(names, want) {
			t.Errorf("ListSnapshots() = %v, want %v", names, want)
		}
	})

	t.Run("overwrites an existing snapshot", func(t *testing.T) {
		name := "claims-20240201T000000.000Z.snap"
		for _, content := range []string{"first", "second"} {
			if err := v.PutSnapshot(ctx, name, strings.NewReader(content)); err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}
		}
		var buf bytes.Buffer
		if err := v.GetSnapshot(ctx, name, &buf); err != nil {
			t.Fatalf("GetSnapshot() error = %v", err)
		}
		if buf.String() != "second" {
			t.Errorf("GetSnapshot() = %q, want %q", buf.String(), "second")
		}
	})

	t.Run("reports missing snapshots", func(t *testing.T) {
		err := v.GetSnapshot(ctx, "claims-19700101T000000.000Z.snap", &bytes.Buffer{})
		if !errors.Is(err, archive.ErrSnapshotNotFound) {
			t.Errorf("GetSnapshot(missing) error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("validates setup", func(t *testing.T) {
		if err := v.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
