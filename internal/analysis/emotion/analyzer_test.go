package emotion

import (
	"testing"

	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
)

func TestAnalyzeGreetingIsNeutral(t *testing.T) {
	feeling := Analyze("你好")
	if feeling != mood.Neutral() {
		t.Fatalf("expected neutral feeling, got %+v", feeling)
	}
}

func TestAnalyzeAngryRefundDemand(t *testing.T) {
	feeling := Analyze("你们太过分了！我要投诉，马上给我退款！")
	if feeling.Label != mood.Angry {
		t.Fatalf("expected angry, got %s", feeling.Label)
	}
	if feeling.Score < 8 {
		t.Fatalf("expected score >= 8, got %d", feeling.Score)
	}
}

func TestAnalyzeDepressedUser(t *testing.T) {
	feeling := Analyze("我今天很难过，好累")
	if feeling.Label != mood.Depressed {
		t.Fatalf("expected depressed, got %s", feeling.Label)
	}
	if feeling.Score < mood.MinScore || feeling.Score > mood.MaxScore {
		t.Fatalf("score out of range: %d", feeling.Score)
	}
}

func TestAnalyzeFriendlyUser(t *testing.T) {
	feeling := Analyze("谢谢你的帮助")
	if feeling.Label != mood.Friendly {
		t.Fatalf("expected friendly, got %s", feeling.Label)
	}
}

func TestAnalyzeScoreIsClamped(t *testing.T) {
	feeling := Analyze("垃圾！骗子！投诉！退款！维权！！！！！")
	if feeling.Score != mood.MaxScore {
		t.Fatalf("expected clamped score %d, got %d", mood.MaxScore, feeling.Score)
	}
}
