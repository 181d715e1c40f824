package providers

import (
	"math"
	"testing"

	jsoniter "github.com/json-iterator/go"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

func TestNumericAcceptsStringsAndNumbers(t *testing.T) {
	var v struct {
		A Numeric `json:"a"`
		B Numeric `json:"b"`
		C Numeric `json:"c"`
	}
	if err := jsoniter.Unmarshal([]byte(`{"a": "300000", "b": 181234.0, "c": null}`), &v); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v.A.Uint64(0) != 300_000 || v.B.Uint64(0) != 181_234 || v.C.Uint64(7) != 7 {
		t.Fatalf("unexpected values %q %q %q", v.A, v.B, v.C)
	}
	for _, in := range []Numeric{"1.5", "0.25", "-3", "18446744073709551616", "1e30", "gas"} {
		if got := in.Uint64(9); got != 9 {
			t.Fatalf("%q: expected the default, got %d", in, got)
		}
	}
	if got := Numeric("18446744073709551615").Uint64(0); got != math.MaxUint64 {
		t.Fatalf("expected max uint64, got %d", got)
	}
}

func TestParseTx(t *testing.T) {
	call, err := ParseTx("test", "0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "0x90411a32", "0x10", 8_000_000)
	if err != nil {
		t.Fatalf("ParseTx failed: %v", err)
	}
	if call.Value.Int64() != 16 || call.Gas != 8_000_000 || len(call.Data) != 4 {
		t.Fatalf("unexpected call %+v", call)
	}

	if call, err := ParseTx("test", "0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "90411a32", "", 0); err != nil || len(call.Data) != 4 || call.Value.Sign() != 0 {
		t.Fatalf("unprefixed calldata: got %+v err=%v", call, err)
	}

	for _, tc := range []struct{ to, data, value string }{
		{"0x0000000000000000000000000000000000000000", "0x90411a32", "0"},
		{"not-an-address", "0x90411a32", "0"},
		{"0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "0x12", "0"},
		{"0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "0x90411a3", "0"},
		{"0x6352a56caadC4F1E25CD6c75970Fa768A3304e64", "0x90411a32", "-1"},
	} {
		if _, err := ParseTx("test", tc.to, tc.data, tc.value, 0); !clierr.Is(err, clierr.CodeUnavailable) {
			t.Fatalf("%+v: expected unavailable error, got %v", tc, err)
		}
	}
}
