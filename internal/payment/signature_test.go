package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v := SignatureVerifier{Secret: []byte("shhh")}
	sig := v.Sign("order_abc", "pay_xyz")
	require.True(t, v.Verify("order_abc", "pay_xyz", sig))
}

func TestVerifyAcceptsUppercaseHex(t *testing.T) {
	v := SignatureVerifier{Secret: []byte("shhh")}
	sig := strings.ToUpper(v.Sign("order_abc", "pay_xyz"))
	require.True(t, v.Verify("order_abc", "pay_xyz", sig))
}

func TestVerifySignsPipeJoinedPair(t *testing.T) {
	secret := []byte("shhh")
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("order_abc|pay_xyz"))
	expected := hex.EncodeToString(mac.Sum(nil))

	v := SignatureVerifier{Secret: secret}
	require.Equal(t, expected, v.Sign("order_abc", "pay_xyz"))
}

func TestVerifyRejectsTamperedInput(t *testing.T) {
	v := SignatureVerifier{Secret: []byte("shhh")}
	sig := v.Sign("order_abc", "pay_xyz")

	require.False(t, v.Verify("order_abc", "pay_other", sig))
	require.False(t, v.Verify("order_other", "pay_xyz", sig))
	require.False(t, v.Verify("order_abc", "pay_xyz", sig[:len(sig)-2]+"00"))
}

func TestVerifyRejectsMissingPieces(t *testing.T) {
	v := SignatureVerifier{Secret: []byte("shhh")}
	sig := v.Sign("order_abc", "pay_xyz")

	require.False(t, v.Verify("", "pay_xyz", sig))
	require.False(t, v.Verify("order_abc", "", sig))
	require.False(t, v.Verify("order_abc", "pay_xyz", ""))
	require.False(t, SignatureVerifier{}.Verify("order_abc", "pay_xyz", sig))
}
