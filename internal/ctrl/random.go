package ctrl

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	deviceTokenBytes = 32
	codeDigits       = 6
)

func newDeviceToken() (string, error) {
	b := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
