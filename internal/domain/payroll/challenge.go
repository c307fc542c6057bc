package payroll

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/bcrypt"
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newChallengeCode derives a 6-digit code from a throwaway HOTP secret and
// returns it with its bcrypt hash. Only the hash is ever persisted.
func newChallengeCode(hashCost int) (string, string, error) {
	raw := make([]byte, 28)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret := secretEncoding.EncodeToString(raw[:20])
	counter := binary.BigEndian.Uint64(raw[20:])

	code, err := hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}

	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), hashCost)
	if err != nil {
		return "", "", err
	}
	return code, string(hash), nil
}

func challengeMatches(hash, code string) bool {
	if hash == "" || len(code) != challengeDigits {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
