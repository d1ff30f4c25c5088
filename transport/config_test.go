package transport

import (
	"os"
	"testing"
)

func TestApplyModeFast3(t *testing.T) {
	c := DefaultConfig()
	c.Mode = "fast3"
	c.ApplyMode()
	if c.NoDelay != 1 || c.Interval != 10 || c.Resend != 2 || c.NoCongestion != 1 {
		t.Errorf("fast3 profile = %+v", c)
	}
}

func TestApplyModeUnknownLeavesFieldsUntouched(t *testing.T) {
	c := DefaultConfig()
	c.NoDelay, c.Interval = 9, 99
	c.Mode = "manual"
	c.ApplyMode()
	if c.NoDelay != 9 || c.Interval != 99 {
		t.Errorf("manual profile mutated fields: %+v", c)
	}
}

func TestLoadConfigOverlaysJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"listen":":9000","crypt":"salsa20"}`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c := DefaultConfig()
	if err := LoadConfig(&c, f.Name()); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Listen != ":9000" || c.Crypt != "salsa20" {
		t.Errorf("overlay = %+v", c)
	}
	if c.MTU != 1350 {
		t.Errorf("unrelated default field clobbered: MTU = %d", c.MTU)
	}
}

func TestSelectBlockCryptFallsBackToAESOnUnknownName(t *testing.T) {
	block, name := selectBlockCrypt("not-a-real-cipher", "some passphrase")
	if name != "aes" {
		t.Errorf("name = %q, want aes", name)
	}
	if block == nil {
		t.Error("expected a non-nil fallback cipher")
	}
}

func TestSelectBlockCryptNull(t *testing.T) {
	block, name := selectBlockCrypt("null", "some passphrase")
	if block != nil {
		t.Errorf("null cipher should produce a nil BlockCrypt, got %v", block)
	}
	if name != "null" {
		t.Errorf("name = %q, want null", name)
	}
}
