package crypto

import (
	"context"
	"testing"
)

func TestMockEncryptor_RoundTrip(t *testing.T) {
	m := NewMockEncryptor()
	ctx := context.Background()

	for _, plain := range []string{"refresh-token", "", "mock:nested"} {
		enc, err := m.Encrypt(ctx, plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plain, err)
		}
		dec, err := m.Decrypt(ctx, enc)
		if err != nil {
			t.Fatalf("Decrypt(%q) failed: %v", enc, err)
		}
		if dec != plain {
			t.Errorf("round trip of %q gave %q", plain, dec)
		}
	}
}
