package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dougsko/pagerd/pkg/fields"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		text string
		want Frequency
	}{
		{"144.5", Frequency{144, 500, 0}},
		{"144.55", Frequency{144, 550, 0}},
		{"144.555", Frequency{144, 555, 0}},
		{"144.5555", Frequency{144, 555, 50}},
		{"144", Frequency{144, 0, 0}},
		{"144.", Frequency{144, 0, 0}},
		{"144.5000", Frequency{144, 500, 0}},
		{"433.0925", Frequency{433, 92, 50}},
		{".5", Frequency{0, 500, 0}},
		{"", Frequency{0, 0, 0}},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.text))
		})
	}
}

func TestResolveAfterFilter(t *testing.T) {
	f := fields.NewFrequency("")
	f.Edit("1")
	f.Edit("14")
	f.Edit("144")
	f.Edit("1445")

	assert.Equal(t, "144.5", f.Text())
	assert.Equal(t, Frequency{144, 500, 0}, Resolve(f.Text()))
}

func TestResolveRanges(t *testing.T) {
	f := fields.NewFrequency("")
	inputs := []string{"1", "12", "123", "1234", "123.4", "123.45", "123.456", "123.4567", "9", "9.9999", "0.0001"}
	for _, in := range inputs {
		shown, _ := f.Edit(in)
		got := Resolve(shown)
		assert.GreaterOrEqual(t, got.MHz, 0)
		assert.GreaterOrEqual(t, got.KHz, 0)
		assert.LessOrEqual(t, got.KHz, 999)
		assert.GreaterOrEqual(t, got.Hz, 0)
		assert.LessOrEqual(t, got.Hz, 90)
		assert.Zero(t, got.Hz%10)
	}
}

func TestFrequencyHertz(t *testing.T) {
	f := Frequency{MHz: 144, KHz: 555, Hz: 50}
	assert.Equal(t, int64(144555050), f.Hertz())
	assert.Equal(t, "144.555050 MHz", f.String())
}
