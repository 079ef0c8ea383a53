package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/ttacon/libphonenumber"
)

var (
	cccdPattern  = regexp.MustCompile(`^[0-9]{12}$`)
	phonePattern = regexp.MustCompile(`^(09|08|07|05|03)[0-9]{8}$`)
)

// phoneRegion is the default region for numbers written without a country code.
const phoneRegion = "VN"

// ValidCCCD reports whether s is a 12-digit citizen identity number.
func ValidCCCD(s string) bool {
	return cccdPattern.MatchString(s)
}

// ValidPhone reports whether s is a Vietnamese mobile number, in national
// (0912345678) or international (+84912345678) form.
func ValidPhone(s string) bool {
	num, err := libphonenumber.Parse(s, phoneRegion)
	if err != nil {
		return false
	}
	if num.GetCountryCode() != 84 {
		return false
	}
	national := libphonenumber.GetNationalSignificantNumber(num)
	if !strings.HasPrefix(national, "0") {
		national = "0" + national
	}
	return phonePattern.MatchString(national)
}

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	return domain.Validator().Var(s, "email") == nil
}

func formatCheck(name, collection, field, rule string, values func(env *Env) []keyedValue, valid func(string) bool) Check {
	return Check{
		Name:     name,
		Category: domain.CategoryFormat,
		Subject:  collection + "." + field,
		Policy:   domain.PolicyStrict,
		Run: func(_ context.Context, env *Env) Finding {
			population := 0
			var ids []string
			for _, kv := range values(env) {
				// empty values belong to the null checks
				if kv.value == "" {
					continue
				}
				population++
				if !valid(kv.value) {
					ids = append(ids, kv.id)
				}
			}
			return Finding{
				Affected:   len(ids),
				Population: population,
				Message:    fmt.Sprintf("Found %d invalid values in %s.%s (%s)", len(ids), collection, field, rule),
				RecordIDs:  ids,
			}
		},
	}
}

func customerValues(pick func(*domain.Customer) string) func(env *Env) []keyedValue {
	return func(env *Env) []keyedValue {
		out := make([]keyedValue, 0, len(env.Snapshot.Customers))
		for _, c := range env.Snapshot.Customers {
			out = append(out, keyedValue{id: c.ID, value: pick(c)})
		}
		return out
	}
}

func formatChecks() []Check {
	return []Check{
		formatCheck("format_cccd_validation", domain.CollectionCustomers, "cccd_number",
			"should be 12 digits",
			customerValues(func(c *domain.Customer) string { return c.CCCDNumber }),
			ValidCCCD),
		formatCheck("format_phone_validation", domain.CollectionCustomers, "phone_number",
			"should be a Vietnamese mobile number",
			customerValues(func(c *domain.Customer) string { return c.PhoneNumber }),
			ValidPhone),
		formatCheck("format_email_validation", domain.CollectionCustomers, "email",
			"should be a valid email address",
			customerValues(func(c *domain.Customer) string { return c.Email }),
			ValidEmail),
	}
}
