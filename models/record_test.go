package models

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeTurnover(t *testing.T) {
	cases := map[float64]float64{
		0:           0,
		0.25:        0.25,
		1:           1,
		12.5:        0.125,
		100:         1,
		250:         Sentinel,
		-0.3:        Sentinel,
		Sentinel:    Sentinel,
		math.NaN():  Sentinel,
		math.Inf(1): Sentinel,
	}
	for in, want := range cases {
		if got := NormalizeTurnover(in); got != want {
			t.Errorf("NormalizeTurnover(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSetValueNormalizesTurnoverOnly(t *testing.T) {
	var r Record
	r.SetValue(TurnoverRate, 34)
	r.SetValue(MarketCap, 34)

	if v, _ := r.Value(TurnoverRate); v != 0.34 {
		t.Fatalf("turnover not normalized: %v", v)
	}
	if v, _ := r.Value(MarketCap); v != 34 {
		t.Fatalf("market cap must be stored as is: %v", v)
	}
	if _, ok := r.Value(Volume24h); ok {
		t.Fatal("volume was never set")
	}
}

func TestHourBucket(t *testing.T) {
	in := time.Date(2024, 5, 1, 13, 47, 12, 999, time.UTC)
	got := HourBucket(in)
	if got.Format(HourBucketLayout) != "2024-05-01 13:00:00" {
		t.Fatalf("unexpected bucket %s", got)
	}
}
