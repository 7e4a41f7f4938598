package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFetchURLDomainMatchIsCaseInsensitive(t *testing.T) {
	check := CheckFetchURL("https://EVIL.com/exfiltrate")
	assert.True(t, check(HTTPDomain("evil.com")), "a deny rule on a lowercase domain must still match an uppercase host")

	check = CheckFetchURL("https://evil.com/exfiltrate")
	assert.True(t, check(HTTPDomain("EVIL.COM")), "an uppercase domain value must still match a lowercase host")
}

func TestCheckFetchURLDomainMatchesSubdomain(t *testing.T) {
	check := CheckFetchURL("https://api.EXAMPLE.com/path")
	assert.True(t, check(HTTPDomain("example.com")))
}

func TestCheckFetchURLDomainRejectsUnrelatedHost(t *testing.T) {
	check := CheckFetchURL("https://evil.com.attacker.net/path")
	assert.False(t, check(HTTPDomain("evil.com")), "a domain suffix match must not match an unrelated host that merely contains the domain as a substring")
}

func TestCheckComponentAccessHTTPComponentDomainIsCaseInsensitive(t *testing.T) {
	check := CheckComponentAccess(ComponentAccessRequest{IsHTTP: true, URL: "https://EVIL.com/widget.tar"})
	p := Permission{Kind: KindHTTPComponent, String: StringMatcher{Shape: MatchDomain, Value: "evil.com"}}
	assert.True(t, check(p))
}

func TestPermissionJSONRoundTripsEmptyStringMatcherValue(t *testing.T) {
	original := Permission{Kind: KindEnv, String: StringMatcher{Shape: MatchExact, Value: ""}}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exact":""`)

	var decoded Permission
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}
