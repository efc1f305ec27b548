package fees

import (
	"math/big"
	"testing"
)

func TestApplySplitsExactly(t *testing.T) {
	cases := []struct {
		name    string
		total   int64
		bps     uint32
		wantFee int64
		wantNet int64
	}{
		{"zero total", 0, 250, 0, 0},
		{"zero bps", 1_000_000, 0, 0, 1_000_000},
		{"round division", 10_000, 250, 250, 9_750},
		{"truncating division", 1_06, 250, 2, 104},
		{"single unit", 1, 1000, 0, 1},
		{"max cap", 999, 1000, 99, 900},
		{"large total", 123_456_789, 777, 9_592_592, 113_864_197},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split := Apply(big.NewInt(tc.total), tc.bps)
			if split.Fee.Int64() != tc.wantFee {
				t.Fatalf("fee: got %s want %d", split.Fee, tc.wantFee)
			}
			if split.Net.Int64() != tc.wantNet {
				t.Fatalf("net: got %s want %d", split.Net, tc.wantNet)
			}
			sum := new(big.Int).Add(split.Fee, split.Net)
			if sum.Int64() != tc.total && tc.total > 0 {
				t.Fatalf("fee + net = %s, want %d", sum, tc.total)
			}
		})
	}
}

func TestApplyConservesValue(t *testing.T) {
	totals := []int64{1, 2, 3, 9, 10, 99, 100, 101, 9_999, 10_000, 10_001, 1 << 40}
	rates := []uint32{0, 1, 25, 250, 999, 1000}
	for _, total := range totals {
		for _, bps := range rates {
			split := Apply(big.NewInt(total), bps)
			sum := new(big.Int).Add(split.Fee, split.Net)
			if sum.Cmp(big.NewInt(total)) != 0 {
				t.Fatalf("total=%d bps=%d: fee %s + net %s != total", total, bps, split.Fee, split.Net)
			}
			if split.Fee.Sign() < 0 || split.Net.Sign() < 0 {
				t.Fatalf("total=%d bps=%d: negative component", total, bps)
			}
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	recipient := [20]byte{0x01}
	cases := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{"ok", Policy{FeeBps: 250, Recipient: recipient}, nil},
		{"zero fee no recipient", Policy{}, nil},
		{"at cap", Policy{FeeBps: 1000, Recipient: recipient}, nil},
		{"above cap", Policy{FeeBps: 1001, Recipient: recipient}, ErrFeeBpsOutOfRange},
		{"fee without recipient", Policy{FeeBps: 10}, ErrZeroRecipient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if err != tc.wantErr {
				t.Fatalf("got %v want %v", err, tc.wantErr)
			}
		})
	}
}
