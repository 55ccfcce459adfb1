package core

import "testing"

func TestAggregatePortalStatsLeftJoin(t *testing.T) {
	eligible := []EligibleHomeowner{
		{ID: 1, FirstName: "A", DisplayName: "A"},
		{ID: 2, FirstName: "B", DisplayName: "B"},
	}
	users := []PortalUser{{ID: 10, HomeownerID: 1, Active: true}}

	got := AggregatePortalStats(eligible, users, AggregateOptions{})
	if got.TotalEligible != 2 || got.WithPortalAccount != 1 || got.WithoutPortalAccount != 1 {
		t.Fatalf("stats = %+v, want total=2 with=1 without=1", got)
	}
}

func TestAggregatePortalStatsNoMatchMeansNotRegistered(t *testing.T) {
	eligible := []EligibleHomeowner{{ID: 5, DisplayName: "E"}}
	got := AggregatePortalStats(eligible, nil, AggregateOptions{})
	if got.WithoutPortalAccount != 1 || got.WithPortalAccount != 0 {
		t.Fatalf("missing account must count as not registered, got %+v", got)
	}
}

func TestAggregatePortalStatsCounters(t *testing.T) {
	eligible := []EligibleHomeowner{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	cases := []struct {
		users                []PortalUser
		with, without, total int
	}{
		{nil, 0, 4, 4},
		{[]PortalUser{{HomeownerID: 1, Active: true}}, 1, 3, 4},
		// deactivated account counts as not registered
		{[]PortalUser{{HomeownerID: 1, Active: false}}, 0, 4, 4},
		// several accounts for one owner still count the owner once
		{[]PortalUser{{HomeownerID: 2, Active: true}, {HomeownerID: 2, Active: true}}, 1, 3, 4},
		// a deactivated account next to an active one does not cancel it
		{[]PortalUser{{HomeownerID: 3, Active: false}, {HomeownerID: 3, Active: true}}, 1, 3, 4},
		// account for an owner outside the eligible set is ignored
		{[]PortalUser{{HomeownerID: 42, Active: true}}, 0, 4, 4},
	}
	for i, tc := range cases {
		got := AggregatePortalStats(eligible, tc.users, AggregateOptions{})
		if got.TotalEligible != tc.total || got.WithPortalAccount != tc.with || got.WithoutPortalAccount != tc.without {
			t.Fatalf("case %d: stats = %+v, want total=%d with=%d without=%d",
				i, got, tc.total, tc.with, tc.without)
		}
		if got.TotalEligible != got.WithPortalAccount+got.WithoutPortalAccount {
			t.Fatalf("case %d: counters do not add up: %+v", i, got)
		}
	}
}

func TestAggregatePortalStatsEmptyEligible(t *testing.T) {
	got := AggregatePortalStats(nil, []PortalUser{{HomeownerID: 1, Active: true}}, AggregateOptions{IncludeAdoptionRate: true})
	if got.TotalEligible != 0 || got.WithPortalAccount != 0 || got.WithoutPortalAccount != 0 || got.AdoptionRateBps != 0 {
		t.Fatalf("empty eligible set must produce all-zero stats, got %+v", got)
	}
}

func TestAggregatePortalStatsAdoptionRate(t *testing.T) {
	eligible := func(n int) []EligibleHomeowner {
		out := make([]EligibleHomeowner, n)
		for i := range out {
			out[i] = EligibleHomeowner{ID: int64(i + 1)}
		}
		return out
	}
	active := func(ids ...int64) []PortalUser {
		out := make([]PortalUser, len(ids))
		for i, id := range ids {
			out[i] = PortalUser{HomeownerID: id, Active: true}
		}
		return out
	}

	cases := []struct {
		total int
		users []PortalUser
		want  int64
	}{
		{2, active(1), 5000},
		{3, active(1), 3333},    // 1/3 rounds down
		{3, active(1, 2), 6667}, // 2/3 rounds up
		{4, active(1, 2, 3, 4), 10000},
		{5, active(), 0},
	}
	for i, tc := range cases {
		got := AggregatePortalStats(eligible(tc.total), tc.users, AggregateOptions{IncludeAdoptionRate: true})
		if got.AdoptionRateBps != tc.want {
			t.Fatalf("case %d: AdoptionRateBps = %d, want %d", i, got.AdoptionRateBps, tc.want)
		}
	}

	// rate is opt-in
	got := AggregatePortalStats(eligible(2), active(1), AggregateOptions{})
	if got.AdoptionRateBps != 0 {
		t.Fatalf("rate must stay zero when not requested, got %d", got.AdoptionRateBps)
	}
}

func TestAggregatePortalStatsDeterministic(t *testing.T) {
	eligible := []EligibleHomeowner{{ID: 1}, {ID: 2}, {ID: 3}}
	users := []PortalUser{
		{HomeownerID: 2, Active: true},
		{HomeownerID: 3, Active: false},
		{HomeownerID: 1, Active: true},
	}
	first := AggregatePortalStats(eligible, users, AggregateOptions{IncludeAdoptionRate: true})
	for i := 0; i < 10; i++ {
		if got := AggregatePortalStats(eligible, users, AggregateOptions{IncludeAdoptionRate: true}); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
