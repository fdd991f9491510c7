package domain

import "testing"

func TestGradeForScoreBands(t *testing.T) {
	cases := []struct {
		score int
		want  Grade
	}{
		{100, GradeA},
		{80, GradeA},
		{79, GradeB},
		{60, GradeB},
		{59, GradeC},
		{40, GradeC},
		{39, GradeD},
		{20, GradeD},
		{19, GradeF},
		{0, GradeF},
	}

	for _, tc := range cases {
		if got := GradeForScore(tc.score); got != tc.want {
			t.Fatalf("score %d: expected grade %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestEngagementTypeValid(t *testing.T) {
	valid := []EngagementType{
		EngagementLike, EngagementComment, EngagementShare, EngagementFollow,
		EngagementDMSent, EngagementDMReply, EngagementConversion, EngagementChurn,
	}
	for _, engType := range valid {
		if !engType.Valid() {
			t.Fatalf("expected %s to be valid", engType)
		}
	}

	if EngagementType("retweet").Valid() {
		t.Fatal("expected unknown engagement type to be invalid")
	}
	if EngagementType("").Valid() {
		t.Fatal("expected empty engagement type to be invalid")
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	if (SignalSnapshot{Likes: 1, Comments: 2}).Corrupt() {
		t.Fatal("expected non-negative counters to be well formed")
	}
	if !(SignalSnapshot{Shares: -1}).Corrupt() {
		t.Fatal("expected negative counter to be corrupt")
	}
}

func TestFunnelOrderCoversAllStatuses(t *testing.T) {
	seen := make(map[Status]bool, len(FunnelOrder))
	for _, status := range FunnelOrder {
		if !status.Valid() {
			t.Fatalf("funnel contains invalid status %s", status)
		}
		if seen[status] {
			t.Fatalf("funnel lists %s twice", status)
		}
		seen[status] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 funnel stages, got %d", len(seen))
	}
}
