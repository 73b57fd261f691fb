package util_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/labctl/wfslab/util"
)

func ExampleIntSliceToCSV() {
	fmt.Println(util.IntSliceToCSV([]int{0, 1, 2, 3}))
	// Output: 0,1,2,3
}

func ExampleParseDuration() {
	d, _ := util.ParseDuration("2.5")
	fmt.Println(d)
	// Output: 2.5s
}

func TestAllElementsNumbers(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"10", true},
		{"1.5", true},
		{".", false},
		{"1.2.3", false},
		{"10ms", false},
		{"-1", false},
	}
	for _, c := range cases {
		if got := util.AllElementsNumbers(c.in); got != c.want {
			t.Errorf("AllElementsNumbers(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseDurationWithUnit(t *testing.T) {
	d, err := util.ParseDuration(" 250ms ")
	if err != nil {
		t.Fatal(err)
	}
	if d != 250*time.Millisecond {
		t.Errorf("got %v, want 250ms", d)
	}
	if _, err := util.ParseDuration("soon"); err == nil {
		t.Error("expected an error for a non-duration")
	}
}
