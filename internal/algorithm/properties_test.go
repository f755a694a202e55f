package algorithm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProperties_DefaultsAndOverrides(t *testing.T) {
	p := NewProperties()
	p.Declare("count", "3", "how many")
	p.Declare("delay", "250ms", "pause")
	p.Declare("ratio", "0.5", "")
	p.Declare("loud", "false", "")

	n, err := p.Int("count")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	d, err := p.Duration("delay")
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)

	require.NoError(t, p.Set("count", "9"))
	require.NoError(t, p.Set("loud", "true"))

	n, err = p.Int("count")
	require.NoError(t, err)
	require.Equal(t, 9, n)

	b, err := p.Bool("loud")
	require.NoError(t, err)
	require.True(t, b)

	f, err := p.Float("ratio")
	require.NoError(t, err)
	require.InDelta(t, 0.5, f, 1e-9)
}

func TestProperties_UnknownName(t *testing.T) {
	p := NewProperties()
	require.ErrorIs(t, p.Set("nope", "1"), ErrUnknownProperty)
	_, err := p.Get("nope")
	require.ErrorIs(t, err, ErrUnknownProperty)
	require.Equal(t, "", p.String("nope"))
}

func TestProperties_BadConversion(t *testing.T) {
	p := NewProperties()
	p.Declare("count", "many", "")
	_, err := p.Int("count")
	require.Error(t, err)
	require.Contains(t, err.Error(), "property count")
}

func TestProperties_Validate(t *testing.T) {
	p := NewProperties()
	p.Declare("a", "", "", Mandatory())
	p.Declare("b", "default", "", Mandatory())

	require.ErrorIs(t, p.Validate(), ErrMissingProperty)
	require.NoError(t, p.Set("a", "x"))
	require.NoError(t, p.Validate())
}

func TestProperties_RedeclareKeepsValue(t *testing.T) {
	p := NewProperties()
	p.Declare("a", "1", "")
	require.NoError(t, p.Set("a", "2"))
	p.Declare("a", "3", "new doc")

	require.Equal(t, "2", p.String("a"))
	require.Equal(t, []string{"a"}, p.Names())
	require.Equal(t, "new doc", p.List()[0].Doc)
}

func TestProperties_CopyFromIsDeep(t *testing.T) {
	src := NewProperties()
	src.Declare("a", "1", "doc", Mandatory())
	require.NoError(t, src.Set("a", "2"))

	dst := NewProperties()
	dst.Declare("stale", "", "")
	dst.CopyFrom(src)

	require.Equal(t, []string{"a"}, dst.Names())
	require.Equal(t, "2", dst.String("a"))
	require.True(t, dst.List()[0].Mandatory)

	require.NoError(t, dst.Set("a", "3"))
	require.Equal(t, "2", src.String("a"))
}

func TestProperties_SetAll(t *testing.T) {
	p := NewProperties()
	p.Declare("a", "", "")
	p.Declare("b", "", "")

	require.NoError(t, p.SetAll(map[string]string{"a": "1", "b": "2"}))
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, p.Values())
	require.ErrorIs(t, p.SetAll(map[string]string{"zzz": "1"}), ErrUnknownProperty)
}
