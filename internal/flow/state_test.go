package flow

import "testing"

func TestNextStage(t *testing.T) {
	cases := []struct {
		name           string
		current        Stage
		critiquePassed bool
		revisionCount  int
		want           Stage
	}{
		{"draft always goes to critique", StageDraft, false, 0, StageCritique},
		{"critique passed goes to finalize", StageCritique, true, 1, StageFinalize},
		{"critique failed revises", StageCritique, false, 1, StageDraft},
		{"critique failed again revises", StageCritique, false, 2, StageDraft},
		{"ceiling forces finalize", StageCritique, false, 3, StageFinalize},
		{"passed at ceiling still finalizes", StageCritique, true, 3, StageFinalize},
		{"finalize goes to mentor", StageFinalize, false, 0, StageMentor},
		{"mentor ends the turn", StageMentor, false, 0, StageDone},
		{"done stays done", StageDone, false, 0, StageDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextStage(tc.current, tc.critiquePassed, tc.revisionCount)
			if got != tc.want {
				t.Errorf("NextStage(%s, %v, %d) = %s, want %s", tc.current, tc.critiquePassed, tc.revisionCount, got, tc.want)
			}
		})
	}
}

func TestCritiquePassed(t *testing.T) {
	if !CritiquePassed("PASS") {
		t.Error("bare marker should pass")
	}
	if !CritiquePassed("整体很好。PASS") {
		t.Error("marker embedded in text should pass")
	}
	if CritiquePassed("需要补充示例代码。") {
		t.Error("feedback without marker should not pass")
	}
	if CritiquePassed("") {
		t.Error("empty critique should not pass")
	}
}
