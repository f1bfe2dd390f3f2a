package classification

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func parseAddress(doc string) Address {
	return NormalizeAddress(gjson.Parse(doc).Get("address"))
}

func TestNormalizeAddressString(t *testing.T) {
	addr := parseAddress(`{"address":"12 High Street, Leeds, ls1 4ab"}`)
	assert.Equal(t, "12 High Street, Leeds, ls1 4ab", addr.Line1)
	assert.Equal(t, "LS1 4AB", addr.Postcode)
}

func TestNormalizeAddressObjectVariants(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"street", `{"address":{"street":"1 Acacia Ave"}}`, "1 Acacia Ave"},
		{"streetAddress", `{"address":{"streetAddress":"2 Oak Rd"}}`, "2 Oak Rd"},
		{"addressLine1", `{"address":{"addressLine1":"3 Elm Close"}}`, "3 Elm Close"},
		{"snake_case", `{"address":{"address_line_1":"4 Birch Way"}}`, "4 Birch Way"},
		{"fullAddress", `{"address":{"fullAddress":"5 Pine Court"}}`, "5 Pine Court"},
		{"line1", `{"address":{"line1":"6 Ash Grove"}}`, "6 Ash Grove"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAddress(tt.doc).Line1)
		})
	}
}

func TestNormalizeAddressPostcode(t *testing.T) {
	addr := parseAddress(`{"address":{"line1":"7 Maple Drive","city":"Manchester","postcode":"m21 9xy"}}`)
	assert.Equal(t, "M21 9XY", addr.Postcode)
	assert.Equal(t, "Manchester", addr.City)
}

func TestNormalizeAddressTruncation(t *testing.T) {
	long := strings.Repeat("x", 300)
	addr := NormalizeAddress(gjson.Parse(`{"a":{"line1":"` + long + `"}}`).Get("a"))
	assert.Len(t, addr.Line1, 255)
}

func TestAddressPlausible(t *testing.T) {
	assert.True(t, Address{Line1: "12 High Street", City: "Leeds", Postcode: "LS1 4AB"}.Plausible())
	assert.False(t, Address{Line1: "12 Hi", City: "Leeds", Postcode: "LS1 4AB"}.Plausible())
	assert.False(t, Address{Line1: "12 High Street", City: "To Be Verified", Postcode: "LS1 4AB"}.Plausible())
	assert.False(t, Address{Line1: "12 High Street", City: "Leeds", Postcode: ""}.Plausible())
}
