package secrets

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// testParams lowers the scrypt cost so key derivation stays fast. The wire
// format is unaffected.
var testParams = Params{N: 1 << 10, R: 8, P: 1}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		plaintext []byte
		pretty    bool
	}{
		{"plain short", []byte("hello"), false},
		{"pretty short", []byte("hello"), true},
		{"pretty long wraps", bytes.Repeat([]byte("secret data "), 40), true},
		{"binary", []byte{0, 1, 2, 0xff, 0xfe}, false},
		{"empty", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			secret, err := EncryptWithParams(tc.plaintext, "password", tc.pretty, testParams)
			if err != nil {
				t.Fatalf("EncryptWithParams() error = %v", err)
			}
			if !IsSecret([]byte(secret)) {
				t.Fatalf("IsSecret() = false for %q", secret[:20])
			}

			got, err := NewKeyring(testParams).Decrypt(secret, "password")
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tc.plaintext) {
				t.Errorf("Decrypt() = %q, want %q", got, tc.plaintext)
			}
		})
	}
}

func TestPrettyLayout(t *testing.T) {
	secret, err := EncryptWithParams([]byte("payload"), "pw", true, testParams)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(secret, "\n")
	if lines[0] != Marker+"1$" {
		t.Errorf("first line = %q, want %q", lines[0], Marker+"1$")
	}
	for i, line := range lines[1:] {
		if len(line) > 80 {
			t.Errorf("line %d has %d columns, want <= 80", i+1, len(line))
		}
	}
}

func TestDecryptFormatFailures(t *testing.T) {
	secret, err := EncryptWithParams([]byte("payload"), "pw", false, testParams)
	if err != nil {
		t.Fatal(err)
	}
	fields := strings.Split(secret, "$")

	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong field count", "$caerbannog$1$only$three"},
		{"extra field", secret + "$extra"},
		{"bad header", strings.Replace(secret, "$caerbannog$", "$carrot$", 1)},
		{"unsupported version", strings.Replace(secret, "$caerbannog$1$", "$caerbannog$2$", 1)},
		{"leading garbage", "x" + secret},
		{"bad base64 nonce", strings.Join([]string{fields[0], fields[1], fields[2], fields[3], "!!!", fields[5], fields[6]}, "$")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKeyring(testParams).Decrypt(tc.input, "pw")
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Decrypt() error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	secret, err := EncryptWithParams([]byte("payload"), "right", false, testParams)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewKeyring(testParams).Decrypt(secret, "wrong"); err == nil {
		t.Error("Decrypt() with wrong password succeeded")
	}
}

func TestKeyringSaltSeparation(t *testing.T) {
	// Two secrets under the same password get distinct salts; one keyring
	// must decrypt both.
	first, err := EncryptWithParams([]byte("first"), "pw", false, testParams)
	if err != nil {
		t.Fatal(err)
	}
	second, err := EncryptWithParams([]byte("second"), "pw", false, testParams)
	if err != nil {
		t.Fatal(err)
	}

	k := NewKeyring(testParams)
	for _, tc := range []struct {
		secret string
		want   string
	}{
		{first, "first"},
		{second, "second"},
		{first, "first"}, // cached key path
	} {
		got, err := k.Decrypt(tc.secret, "pw")
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if string(got) != tc.want {
			t.Errorf("Decrypt() = %q, want %q", got, tc.want)
		}
	}
}
