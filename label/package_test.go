package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePackageRef(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantAuthor     string
		wantName       string
		wantConstraint string
		wantErr        bool
	}{
		{"with caret", "roblox/roact@^1.4.0", "roblox", "roact", "^1.4.0", false},
		{"bare version", "evaera/promise@4.0.0", "evaera", "promise", "4.0.0", false},
		{"range", "sleitnick/knit@>=1.0.0, <2.0.0", "sleitnick", "knit", ">=1.0.0, <2.0.0", false},
		{"no constraint", "roblox/roact", "roblox", "roact", "", false},
		{"mixed case author", "UpliftGames/wally-test", "UpliftGames", "wally-test", "", false},
		{"surrounding space", "  roblox/roact@1.0.0  ", "roblox", "roact", "1.0.0", false},
		{"empty", "", "", "", "", true},
		{"missing slash", "roact@1.0.0", "", "", "", true},
		{"missing name", "roblox/@1.0.0", "", "", "", true},
		{"missing author", "/roact", "", "", "", true},
		{"empty constraint", "roblox/roact@", "", "", "", true},
		{"nested path", "roblox/roact/extra", "", "", "", true},
		{"bad constraint", "roblox/roact@1.0.0;rm", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParsePackageRef(tt.input)
			if tt.wantErr {
				require.Error(t, err, "ParsePackageRef(%q)", tt.input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthor, ref.Author())
			assert.Equal(t, tt.wantName, ref.Name())
			assert.Equal(t, tt.wantConstraint, ref.Constraint())
			assert.Equal(t, tt.wantConstraint != "", ref.HasConstraint())
		})
	}
}

func TestPackageRefString(t *testing.T) {
	ref := MustPackageRef("Roblox/Roact@^1.4.0")
	assert.Equal(t, "Roblox/Roact@^1.4.0", ref.String())
	assert.Equal(t, "Roblox/Roact", ref.FullName())
	assert.Equal(t, "roblox/roact", ref.Key())

	bare := ref.WithConstraint("")
	assert.Equal(t, "Roblox/Roact", bare.String())
	assert.Equal(t, "^1.4.0", ref.Constraint(), "WithConstraint must not mutate the receiver")
}

func TestPackageRefIsEmpty(t *testing.T) {
	var empty PackageRef
	assert.True(t, empty.IsEmpty())
	assert.False(t, MustPackageRef("a/b").IsEmpty())
}

func TestMustPackageRefPanics(t *testing.T) {
	assert.Panics(t, func() { MustPackageRef("not-a-ref") })
}

func TestParsePackageRef_Sentinel(t *testing.T) {
	for _, input := range []string{"", "roact", "roblox/roact@", "roblox/ro act"} {
		_, err := ParsePackageRef(input)
		require.ErrorIs(t, err, ErrInvalidPackageRef, "ParsePackageRef(%q)", input)
	}
}
