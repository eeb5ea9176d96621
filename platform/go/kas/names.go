package kas

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// passwordLength is the generated credential length. KAS enforces complexity
// but rejects several special characters, so passwords stay alphanumeric.
const passwordLength = 12

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

// DatabaseNameFor derives the short identifier that tags a case database in
// the KAS panel: "case_" plus the first 8 hex characters of the dash-stripped
// id. KAS assigns the actual login and limits name length, so the full UUID
// cannot be used.
func DatabaseNameFor(caseID string) string {
	short := strings.ReplaceAll(caseID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "case_" + short
}

// GeneratePassword produces a random alphanumeric password containing at
// least one uppercase letter, one lowercase letter and one digit.
func GeneratePassword(length int) (string, error) {
	if length < 3 {
		return "", fmt.Errorf("password length %d too short", length)
	}

	allChars := upperChars + lowerChars + digitChars

	chars := make([]byte, 0, length)
	for _, set := range []string{upperChars, lowerChars, digitChars} {
		ch, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, ch)
	}
	for len(chars) < length {
		ch, err := randomChar(allChars)
		if err != nil {
			return "", err
		}
		chars = append(chars, ch)
	}

	// Shuffle so the mandatory character classes are not positionally fixed.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}

	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("random char: %w", err)
	}
	return set[idx.Int64()], nil
}
