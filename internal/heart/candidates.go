package heart

import (
	"fmt"
	"strings"
)

// Defaults used when no keyword matches.
const (
	DefaultEmotion = "고요"
	DefaultTopic   = "오늘"
)

type keywordRule struct {
	label    string
	keywords []string
}

// emotionRules are checked in order; the first rule with a matching keyword wins.
var emotionRules = []keywordRule{
	{"두려움", []string{"두려", "무섭", "겁", "불안"}},
	{"슬픔", []string{"슬프", "눈물", "허전", "외롭"}},
	{"분노", []string{"화나", "분노", "짜증"}},
	{"기대감", []string{"기대", "설레", "두근"}},
	{"무기력", []string{"지치", "피곤", "무기력"}},
}

var topicRules = []keywordRule{
	{"진심", []string{"진심"}},
	{"약속", []string{"약속"}},
	{"연결", []string{"연결"}},
	{"선택", []string{"선택"}},
	{"회의", []string{"회의"}},
}

func classify(text string, rules []keywordRule, fallback string) string {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.label
			}
		}
	}
	return fallback
}

// DetectEmotion returns the dominant emotion label for text.
func DetectEmotion(text string) string {
	return classify(text, emotionRules, DefaultEmotion)
}

// DetectTopic returns the topic label for text.
func DetectTopic(text string) string {
	return classify(text, topicRules, DefaultTopic)
}

// GenerateCandidates returns exactly CandidateCount phrasings built from the
// detected emotion and topic. The same text always yields the same candidates.
func GenerateCandidates(sourceText string) []Candidate {
	emotion := DetectEmotion(sourceText)
	topic := DetectTopic(sourceText)

	return []Candidate{
		{Text: fmt.Sprintf("너의 %s은 피해야 할 언어가 아니야. 우리, 그 %s의 근원을 한 겹씩 살펴보면 어때?", emotion, emotion)},
		{Text: fmt.Sprintf("너는 지금 \"%s\" 쪽으로 계속 돌아오고 있어. 우리, 오늘은 그 %s을 지키는 작은 선택 하나를 해볼까?", topic, topic)},
		{Text: fmt.Sprintf("너의 마음이 보내는 신호가 보여. 우리, %s과 %s이 만나는 지점을 찾아서 한 문장으로 정리해볼래?", emotion, topic)},
	}
}
