package cmd

import (
	"testing"

	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

func TestSplitPositionals(t *testing.T) {
	profiles := pipeline.ProfileList{
		"dev":     {Name: "dev"},
		"release": {Name: "release"},
	}

	cases := []struct {
		args        []string
		profile     string
		destination string
	}{
		{nil, "", ""},
		{[]string{"dev"}, "dev", ""},
		{[]string{"pi@ledstrip:"}, "", "pi@ledstrip:"},
		{[]string{"release", "pi@ledstrip:/opt"}, "release", "pi@ledstrip:/opt"},
	}

	for _, tc := range cases {
		profile, destination, err := splitPositionals(tc.args, profiles)
		if err != nil {
			t.Fatalf("splitPositionals(%v) failed: %v", tc.args, err)
		}

		if profile != tc.profile || destination != tc.destination {
			t.Errorf("splitPositionals(%v) = (%s, %s), expected (%s, %s)",
				tc.args, profile, destination, tc.profile, tc.destination)
		}
	}

	_, _, err := splitPositionals([]string{"a", "b", "c"}, profiles)
	if err == nil {
		t.Error("Expected an error for too many arguments")
	}
}
