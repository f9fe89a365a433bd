package insight

import "testing"

func TestFromCandidate(t *testing.T) {
	c := Candidate{Title: "  ChCl:urea 1:2 dissolves cellulose  ", Content: "content"}
	in := FromCandidate(c, SourceExperimentValidated, "REC_1", "task_001", 6.5)

	if in.ID == "" {
		t.Fatal("expected generated id")
	}
	if in.Title != "ChCl:urea 1:2 dissolves cellulose" {
		t.Fatalf("expected trimmed title, got %q", in.Title)
	}
	if in.OriginRecommendationID != "REC_1" {
		t.Fatalf("expected origin back-reference, got %q", in.OriginRecommendationID)
	}
	if in.PerformanceScore != 6.5 {
		t.Fatalf("expected score snapshot 6.5, got %v", in.PerformanceScore)
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCandidateUsable(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want bool
	}{
		{"complete", Candidate{Title: "t", Content: "c"}, true},
		{"missing title", Candidate{Content: "c"}, false},
		{"missing content", Candidate{Title: "t"}, false},
		{"whitespace only", Candidate{Title: "  ", Content: "\n"}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Usable(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	base := Insight{ID: "x", Title: "t", Content: "c", Source: SourceOther, PerformanceScore: 5}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := base
	bad.Source = "guesswork"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for invalid source")
	}

	score := base
	score.PerformanceScore = 11
	if err := score.Validate(); err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}
