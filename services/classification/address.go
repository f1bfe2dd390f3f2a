package classification

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// postcodeRe matches UK postcodes anywhere in a string.
var postcodeRe = regexp.MustCompile(`(?i)[A-Z]{1,2}\d{1,2}[A-Z]?\s*\d[A-Z]{2}`)

// maxAddressLineLength caps line 1; longer values are truncated.
const maxAddressLineLength = 255

// Address is a normalised UK address.
type Address struct {
	Line1    string
	City     string
	Postcode string
}

// addressLineKeys are accepted object keys for line 1, probed in order.
var addressLineKeys = []string{
	"street", "streetAddress", "addressLine1", "address_line_1", "name",
	"fullAddress", "property", "line1", "address1",
}

// NormalizeAddress accepts the many address shapes extractors produce —
// a bare string or an object with any of the known line-1 keys — and
// returns a normalised address. The postcode is pulled out with the UK
// postcode pattern and uppercased.
func NormalizeAddress(value gjson.Result) Address {
	var addr Address

	switch {
	case value.Type == gjson.String:
		addr.Line1 = strings.TrimSpace(value.String())
	case value.IsObject():
		for _, key := range addressLineKeys {
			if v := value.Get(key); v.Exists() && strings.TrimSpace(v.String()) != "" {
				addr.Line1 = strings.TrimSpace(v.String())
				break
			}
		}
		addr.City = strings.TrimSpace(value.Get("city").String())
		if addr.City == "" {
			addr.City = strings.TrimSpace(value.Get("town").String())
		}
		if pc := strings.TrimSpace(value.Get("postcode").String()); pc != "" {
			addr.Postcode = strings.ToUpper(pc)
		}
	}

	// Pull a postcode out of line 1 when none was given explicitly.
	if addr.Postcode == "" && addr.Line1 != "" {
		if m := postcodeRe.FindString(addr.Line1); m != "" {
			addr.Postcode = strings.ToUpper(m)
		}
	}
	if addr.Postcode != "" {
		addr.Postcode = strings.ToUpper(postcodeRe.FindString(addr.Postcode))
	}

	if len(addr.Line1) > maxAddressLineLength {
		addr.Line1 = addr.Line1[:maxAddressLineLength]
	}

	return addr
}

// Plausible reports whether the address is trustworthy enough to overwrite
// property fields: a real line 1, a verified city and a known postcode.
func (a Address) Plausible() bool {
	return len(a.Line1) > 5 &&
		!strings.EqualFold(a.City, "To Be Verified") &&
		!strings.EqualFold(a.Postcode, "UNKNOWN") &&
		a.Postcode != ""
}
