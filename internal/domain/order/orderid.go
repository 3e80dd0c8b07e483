package order

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"
)

// Order identifiers are fixed-shape strings reproduced byte-for-byte for
// the downstream scanning and printing flows:
//
//	AGRI + DD + MM + YYYY + last two digits of the destination pincode
//	     + HH + mm + 4 random uppercase alphanumerics
//
// 22 characters total, e.g. AGRI300820265214307KX2.
const idPrefix = "AGRI"

const idSuffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var idPattern = regexp.MustCompile(`^AGRI(\d{2})(\d{2})(\d{4})(\d{2})(\d{2})(\d{2})([A-Z0-9]{4})$`)

var ErrMalformedID = errors.New("malformed order id")

// IDParts is an order identifier decomposed back into its fields.
type IDParts struct {
	PincodeLastTwo string
	GeneratedAt    time.Time
	Suffix         string
}

// NewID synthesizes an order identifier for the destination pincode at
// the given time.
func NewID(now time.Time, pincode string) string {
	lastTwo := "00"
	if len(pincode) >= 2 {
		lastTwo = pincode[len(pincode)-2:]
	}

	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = idSuffixCharset[rand.IntN(len(idSuffixCharset))]
	}

	return fmt.Sprintf("%s%02d%02d%04d%s%02d%02d%s",
		idPrefix,
		now.Day(), int(now.Month()), now.Year(),
		lastTwo,
		now.Hour(), now.Minute(),
		suffix)
}

// ValidID reports whether id has exactly the generated shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ParseID decomposes an identifier and reconstructs its timestamp from
// the embedded day/month/year/hour/minute.
func ParseID(id string) (*IDParts, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}

	return &IDParts{
		PincodeLastTwo: m[4],
		GeneratedAt:    time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local),
		Suffix:         m[7],
	}, nil
}
