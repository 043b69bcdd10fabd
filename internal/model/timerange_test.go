package model

import "testing"

func TestParseSimpleRange(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid millis", "2022-03-22T12:15:00.000_2022-03-22T12:16:00.000", false},
		{"valid seconds", "2022-03-22T12:15:00_2022-03-22T12:16:00", false},
		{"equal bounds", "2022-03-22T12:15:00.000_2022-03-22T12:15:00.000", false},
		{"inverted", "2022-03-22T12:16:00.000_2022-03-22T12:15:00.000", true},
		{"missing separator", "2022-03-22T12:15:00.000", true},
		{"extra separator", "2022-03-22T12:15:00.000_2022-03-22T12:16:00.000_extra", true},
		{"garbage", "not-a-time_also-not", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSimpleRange(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseSimpleRange(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestParseBucketsRange(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
		buckets int
	}{
		{"one minute", "2022-03-22T12:15:00_2022-03-22T12:16:00", false, 1},
		{"ten minutes", "2022-03-22T12:00:00_2022-03-22T12:10:00", false, 10},
		{"eleven minutes too long", "2022-03-22T12:00:00_2022-03-22T12:11:00", true, 0},
		{"non-minute boundary", "2022-03-22T12:15:30_2022-03-22T12:16:00", true, 0},
		{"inverted", "2022-03-22T12:16:00_2022-03-22T12:15:00", true, 0},
		{"zero span", "2022-03-22T12:15:00_2022-03-22T12:15:00", false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng, err := ParseBucketsRange(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseBucketsRange(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err == nil && rng.BucketCount() != tc.buckets {
				t.Errorf("BucketCount() = %d, want %d", rng.BucketCount(), tc.buckets)
			}
		})
	}
}

func TestBucketsRangeBucketStarts(t *testing.T) {
	rng, err := ParseBucketsRange("2022-03-22T12:00:00_2022-03-22T12:03:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	starts := rng.BucketStarts()
	if len(starts) != 3 {
		t.Fatalf("got %d bucket starts, want 3", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if diff := starts[i].Sub(starts[i-1]); diff.Minutes() != 1 {
			t.Errorf("bucket %d not exactly one minute after bucket %d", i, i-1)
		}
	}
}

func TestRangeRoundTrip(t *testing.T) {
	rng, err := ParseSimpleRange("2022-03-22T12:15:00.000_2022-03-22T12:16:00.000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rng.String(); got != "2022-03-22T12:15:00.000_2022-03-22T12:16:00.000" {
		t.Errorf("String() = %q", got)
	}
}
