package card

import (
	"strings"
)

// Record is one extracted business card. Every field is optional: the
// vision service returns whatever it could read, and absent fields stay
// empty. Records are immutable after construction; corrections create a
// new record rather than patching this one.
type Record struct {
	Name              string `json:"name"`
	Company           string `json:"company"`
	Department        string `json:"department"`
	Title             string `json:"title"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Address           string `json:"address"`
	DecisionInfluence string `json:"decision_influence"`
	Notes             string `json:"notes"`
}

// IsEmpty reports whether no field was extracted at all.
func (r Record) IsEmpty() bool {
	return r.Name == "" &&
		r.Company == "" &&
		r.Department == "" &&
		r.Title == "" &&
		r.Email == "" &&
		r.Phone == "" &&
		r.Address == "" &&
		r.DecisionInfluence == "" &&
		r.Notes == ""
}

// Normalized returns a copy with whitespace trimmed and the phone number
// converted to E.164 where the format is recognized.
func (r Record) Normalized() Record {
	out := Record{
		Name:              strings.TrimSpace(r.Name),
		Company:           strings.TrimSpace(r.Company),
		Department:        strings.TrimSpace(r.Department),
		Title:             strings.TrimSpace(r.Title),
		Email:             strings.TrimSpace(r.Email),
		Phone:             NormalizePhone(r.Phone),
		Address:           strings.TrimSpace(r.Address),
		DecisionInfluence: strings.TrimSpace(r.DecisionInfluence),
		Notes:             strings.TrimSpace(r.Notes),
	}
	return out
}

// NormalizePhone converts Taiwanese phone numbers to E.164 (+886...).
// Numbers in an unrecognized format are returned unchanged so the stored
// record never loses information.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	digits := keepDigits(phone)
	switch {
	case strings.HasPrefix(digits, "09") && len(digits) == 10:
		// Mobile: 09xx-xxx-xxx.
		return "+886" + digits[1:]
	case strings.HasPrefix(digits, "886"):
		return "+" + digits
	case strings.HasPrefix(digits, "0") && len(digits) >= 9:
		// Landline with area code.
		return "+886" + digits[1:]
	}
	return phone
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
