package attendance

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
	pinRe  = regexp.MustCompile(`^\d{4,6}$`)
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ValidateDate checks a YYYY-MM-DD string that must also be a real calendar day.
func ValidateDate(v string) error {
	if !dateRe.MatchString(v) {
		return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, v)
	}
	if _, err := time.Parse(dateLayout, v); err != nil {
		return fmt.Errorf("%w: invalid calendar date %q", ErrValidation, v)
	}
	return nil
}

// ValidateTime checks an HH:MM time of day.
func ValidateTime(v string) error {
	if !timeRe.MatchString(v) {
		return fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrValidation, v)
	}
	if _, err := time.Parse(timeLayout, v); err != nil {
		return fmt.Errorf("%w: invalid time of day %q", ErrValidation, v)
	}
	return nil
}

// ValidatePIN checks a 4-6 digit numeric PIN.
func ValidatePIN(v string) error {
	if !pinRe.MatchString(v) {
		return fmt.Errorf("%w: PIN must be 4-6 digits", ErrValidation)
	}
	return nil
}

// DateRange is an optional inclusive [From, To] filter on session dates.
// Empty bounds are open.
type DateRange struct {
	From string
	To   string
}

// Validate checks both bounds and their order.
func (r DateRange) Validate() error {
	if r.From != "" {
		if err := ValidateDate(r.From); err != nil {
			return err
		}
	}
	if r.To != "" {
		if err := ValidateDate(r.To); err != nil {
			return err
		}
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return fmt.Errorf("%w: date from %s is after date to %s", ErrValidation, r.From, r.To)
	}
	return nil
}

// Contains reports whether an ISO date lies inside the range.
func (r DateRange) Contains(date string) bool {
	if r.From != "" && date < r.From {
		return false
	}
	if r.To != "" && date > r.To {
		return false
	}
	return true
}

// RandomPIN returns a uniformly random 6-digit PIN.
func RandomPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
