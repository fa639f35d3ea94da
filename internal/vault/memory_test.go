package vault

import "testing"

func TestMemoryVault(t *testing.T) {
	v := NewMemoryVault("test-vault")
	if v.Name() != "test-vault" {
		t.Errorf("Name() = %q", v.Name())
	}
	testVault(t, v)
}
