package wfs

import "testing"

func TestFamilyOf(t *testing.T) {
	cases := []struct {
		id   int
		want Family
	}{
		{0x0001, FamilyWFS},
		{OffsetWFS10 + 3, FamilyWFS10},
		{OffsetWFS20, FamilyWFS20},
		{OffsetWFS30 + 1, FamilyWFS30},
		{OffsetWFS40 + 7, FamilyWFS40},
	}
	for _, c := range cases {
		if got := FamilyOf(c.id); got != c.want {
			t.Errorf("FamilyOf(%#x) = %s, want %s", c.id, got, c.want)
		}
	}
}

func TestDefaultResolutions(t *testing.T) {
	cases := []struct {
		f    Family
		want string
	}{
		{FamilyWFS, "768x768"},
		{FamilyWFS10, "360x360"},
		{FamilyWFS20, "1080x1080"},
		{FamilyWFS30, "1936x1216"},
		{FamilyWFS40, "768x768"},
	}
	for _, c := range cases {
		res, err := c.f.Resolution(c.f.DefaultResolution())
		if err != nil {
			t.Fatal(err)
		}
		if res.String() != c.want {
			t.Errorf("%s default resolution %s, want %s", c.f, res, c.want)
		}
	}
}

func TestResolutionOutOfRange(t *testing.T) {
	if _, err := FamilyWFS20.Resolution(10); err == nil {
		t.Error("WFS20 has 10 resolutions, index 10 should fail")
	}
	if _, err := FamilyWFS30.Resolution(11); err != nil {
		t.Errorf("WFS30 index 11: %v", err)
	}
	if _, err := FamilyWFS.Resolution(-1); err == nil {
		t.Error("negative index should fail")
	}
}

func TestResolutionsIsACopy(t *testing.T) {
	tbl := FamilyWFS20.Resolutions()
	tbl[0] = Resolution{1, 1}
	if res, _ := FamilyWFS20.Resolution(0); res.Width != 1440 {
		t.Errorf("table modified through the returned slice: %s", res)
	}
}

func TestSelectableResolution(t *testing.T) {
	for _, f := range []Family{FamilyWFS, FamilyWFS10, FamilyWFS20, FamilyWFS30, FamilyWFS40} {
		want := f == FamilyWFS20 || f == FamilyWFS30
		if f.SelectableResolution() != want {
			t.Errorf("%s.SelectableResolution() = %v", f, !want)
		}
	}
}
