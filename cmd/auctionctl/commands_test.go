package main

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestParseWhen(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseWhen("90s", now)
	check.NoError(t, err)
	check.Equal(t, now.Add(90*time.Second), got)

	got, err = parseWhen("2025-03-11T09:30:00Z", now)
	check.NoError(t, err)
	check.Equal(t, time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC), got)

	_, err = parseWhen("", now)
	check.Error(t, err)

	_, err = parseWhen("tomorrow", now)
	check.Error(t, err)
}

func TestAuctionID(t *testing.T) {
	id, err := auctionID([]string{"a-1", "--bidder", "x"})
	check.NoError(t, err)
	check.Equal(t, "a-1", id)

	_, err = auctionID(nil)
	check.Error(t, err)
}
