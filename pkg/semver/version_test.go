package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion_ZeroPadsShortForms(t *testing.T) {
	cases := []struct {
		input string
		want  Version
	}{
		{"1", Version{Major: 1}},
		{"1.2", Version{Major: 1, Minor: 2}},
		{"1.2.3", Version{Major: 1, Minor: 2, Patch: 3}},
		{"v1.2.3", Version{Major: 1, Minor: 2, Patch: 3}},
		{"1.2.3-beta.1", Version{Major: 1, Minor: 2, Patch: 3, Prerelease: "beta.1"}},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseVersion(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Major, got.Major)
			assert.Equal(t, tc.want.Minor, got.Minor)
			assert.Equal(t, tc.want.Patch, got.Patch)
			assert.Equal(t, tc.want.Prerelease, got.Prerelease)
		})
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	_, err := ParseVersion("not-a-version")
	require.Error(t, err)
	var invalidErr *InvalidVersionError
	require.ErrorAs(t, err, &invalidErr)
}

func TestVersion_Compare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0-beta", "1.0.0", -1}, // missing prerelease beats present prerelease
		{"1.0.0", "1.0.0-beta", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1}, // lexicographic fallback
	}

	for _, tc := range cases {
		a := MustParseVersion(tc.a)
		b := MustParseVersion(tc.b)
		assert.Equal(t, tc.want, a.Compare(b), "%s vs %s", tc.a, tc.b)
	}
}

func TestVersion_TextMarshaling(t *testing.T) {
	v := MustParseVersion("1.2.3-rc.1")
	text, err := v.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3-rc.1", string(text))

	var roundTripped Version
	require.NoError(t, roundTripped.UnmarshalText(text))
	assert.Equal(t, v, roundTripped)
}

func TestIsVersionCompatible(t *testing.T) {
	assert.True(t, IsVersionCompatible("1.2.0", "1.0.0"))
	assert.True(t, IsVersionCompatible("1.0.0", "1.0.0"))
	assert.False(t, IsVersionCompatible("0.9.0", "1.0.0"))
	assert.True(t, IsVersionCompatible("1.0.0", ""))
	assert.True(t, IsVersionCompatible("1.0.0", "  "))
	assert.False(t, IsVersionCompatible("not-a-version", "1.0.0"))
}
