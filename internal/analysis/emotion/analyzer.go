package emotion

import (
	"strings"

	"github.com/zhouzirui/xiaolang/backend/internal/model/mood"
)

// keywordBuckets 为每种情绪列出触发关键词，命中一次记一次。
var keywordBuckets = map[mood.Label][]string{
	mood.Angry: {
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "怒火", "气愤", "抓狂", "过分", "垃圾", "骗子",
		"投诉", "退款", "退钱", "维权", "差评", "举报", "欺骗", "坑人", "太差", "什么破",
		"angry", "furious", "rage", "pissed", "refund", "complain", "scam", "terrible",
	},
	mood.Depressed: {
		"难过", "伤心", "失落", "沮丧", "悲伤", "痛苦", "寂寞", "孤单", "失望", "心碎", "低落", "委屈",
		"没意思", "好累", "绝望", "想哭",
		"unhappy", "sad", "depressed", "upset", "hurt", "sorrow", "tired of",
	},
	mood.Cheerful: {
		"太棒了", "太好了", "哈哈", "激动", "兴奋", "惊喜", "哇塞", "哇哦", "好耶", "绝了", "太酷了",
		"awesome", "amazing", "wow", "can't wait", "superb",
	},
	mood.Upbeat: {
		"开心", "高兴", "快乐", "不错", "期待", "顺利", "满意", "喜欢", "加油",
		"great", "happy", "nice", "glad",
	},
	mood.Friendly: {
		"谢谢", "感谢", "请问", "麻烦", "辛苦", "劳驾", "拜托",
		"thanks", "thank you", "please",
	},
}

// bucketOrder decides ties: stronger negative moods win so escalation is not missed.
var bucketOrder = []mood.Label{mood.Angry, mood.Depressed, mood.Cheerful, mood.Upbeat, mood.Friendly}

// Analyze 通过关键词与标点估计用户情绪。没有命中任何关键词时返回 {default, 5}。
func Analyze(text string) mood.Feeling {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return mood.Neutral()
	}

	best := mood.Default
	bestHits := 0
	for _, label := range bucketOrder {
		hits := 0
		for _, word := range keywordBuckets[label] {
			if strings.Contains(normalized, word) {
				hits++
			}
		}
		if hits > bestHits {
			best = label
			bestHits = hits
		}
	}

	if bestHits == 0 {
		return mood.Neutral()
	}

	exclamations := strings.Count(text, "!") + strings.Count(text, "！")
	if exclamations > 3 {
		exclamations = 3
	}

	score := mood.MidpointScore + 2*bestHits + exclamations
	return mood.Feeling{Label: best, Score: mood.ClampScore(score)}
}
