package auth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// 支持的公钥类型。
const (
	KeyEd25519   = "ed25519"
	KeyECDSAP256 = "ecdsa-p256"
)

var (
	ErrUnsupportedKey = errors.New("unsupported key type")
	ErrBadPublicKey   = errors.New("malformed public key")
	ErrBadSignature   = errors.New("signature verification failed")
)

// NewChallenge 生成 32 字节随机挑战，hex 编码。
func NewChallenge() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidatePublicKey 检查公钥能否按 keyType 解析。
// ed25519 为 32 字节原始公钥；ecdsa-p256 为 PKIX DER。二者都以 base64 传输。
func ValidatePublicKey(keyType, publicKey string) error {
	_, err := parsePublicKey(keyType, publicKey)
	return err
}

// VerifySignature 校验对 challenge 字符串的签名。ecdsa 签名是对 SHA-256 摘要的 ASN.1 签名。
func VerifySignature(keyType, publicKey, challenge, signature string) error {
	pub, err := parsePublicKey(keyType, publicKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrBadSignature)
	}
	switch k := pub.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(k, []byte(challenge), sig) {
			return ErrBadSignature
		}
	case *ecdsa.PublicKey:
		digest := sha256.Sum256([]byte(challenge))
		if !ecdsa.VerifyASN1(k, digest[:], sig) {
			return ErrBadSignature
		}
	}
	return nil
}

func parsePublicKey(keyType, publicKey string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrBadPublicKey)
	}
	switch keyType {
	case KeyEd25519:
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 key must be %d bytes", ErrBadPublicKey, ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(raw), nil
	case KeyECDSAP256:
		pub, err := x509.ParsePKIXPublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
		}
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok || k.Curve.Params().Name != "P-256" {
			return nil, fmt.Errorf("%w: not a P-256 key", ErrBadPublicKey)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKey, keyType)
	}
}
