package portfolio

import (
	"math"
	"testing"
)

func TestDistribution_SumsToOne(t *testing.T) {
	holdings := []Holding{
		{Ticker: "BTC", Price: 1, Balance: 0.7},
		{Ticker: "ETH", Price: 0.05, Balance: 4},
		{Ticker: "ADA", Price: 0.00001, Balance: 1000},
	}

	allocation := Distribution(holdings)

	sum := 0.0
	for ticker, share := range allocation {
		if share < 0 || share > 1 {
			t.Fatalf("%s share out of range: %v", ticker, share)
		}
		sum += share
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("shares sum to %v", sum)
	}
	if math.Abs(allocation["ETH"]-0.2/0.91) > 1e-12 {
		t.Fatalf("unexpected ETH share %v", allocation["ETH"])
	}
}

func TestDistribution_ZeroTotal(t *testing.T) {
	holdings := []Holding{
		{Ticker: "BTC", Price: 1, Balance: 0},
		{Ticker: "ETH", Price: 0, Balance: 3},
	}

	allocation := Distribution(holdings)
	for ticker, share := range allocation {
		if share != 0 {
			t.Fatalf("%s expected zero share, got %v", ticker, share)
		}
	}
	if len(allocation) != 2 {
		t.Fatalf("expected both tickers present")
	}
}

func TestDistribution_IgnoresInvalidValues(t *testing.T) {
	holdings := []Holding{
		{Ticker: "BTC", Price: 1, Balance: 1},
		{Ticker: "ETH", Price: math.NaN(), Balance: 3},
		{Ticker: "LTC", Price: 0.01, Balance: -5},
	}

	allocation := Distribution(holdings)
	if allocation["BTC"] != 1 || allocation["ETH"] != 0 || allocation["LTC"] != 0 {
		t.Fatalf("unexpected allocation %v", allocation)
	}
	if !math.IsNaN(holdings[1].Price) {
		t.Fatalf("input mutated")
	}
}

func TestSortByValue(t *testing.T) {
	holdings := []Holding{
		{Ticker: "ADA", Price: 0.1, Balance: 1},
		{Ticker: "BTC", Price: 1, Balance: 2},
		{Ticker: "ETH", Price: 0.05, Balance: 2},
		{Ticker: "DOT", Price: 0.1, Balance: 1},
	}

	sorted := SortByValue(holdings)
	want := []string{"BTC", "ADA", "DOT", "ETH"}
	for i, ticker := range want {
		if sorted[i].Ticker != ticker {
			t.Fatalf("position %d: got %s want %s", i, sorted[i].Ticker, ticker)
		}
	}
	if holdings[0].Ticker != "ADA" {
		t.Fatalf("input reordered")
	}
}
