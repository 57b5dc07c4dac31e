package analytics

import (
	"sort"
	"strings"
	"unicode"

	"channel-sense-bot/internal/domain"
)

// Частые служебные слова, не несущие темы. Список покрывает русский и
// английский, остальные языки фильтруются порогом длины.
var stopWords = map[string]struct{}{
	"это": {}, "как": {}, "что": {}, "для": {}, "или": {}, "если": {},
	"так": {}, "вот": {}, "все": {}, "всё": {}, "они": {}, "она": {},
	"оно": {}, "когда": {}, "только": {}, "очень": {}, "уже": {},
	"быть": {}, "есть": {}, "надо": {}, "нет": {}, "его": {}, "еще": {},
	"ещё": {}, "был": {}, "была": {}, "было": {}, "будет": {}, "можно": {},
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "not": {}, "are": {}, "but": {}, "have": {}, "was": {},
	"all": {}, "can": {}, "will": {}, "just": {}, "what": {}, "from": {},
	"your": {}, "they": {}, "there": {}, "about": {}, "when": {},
}

const minTopicRunes = 4

// ExtractTrendingTopics выделяет популярные слова из текстов сообщений.
// Слова нормализуются к нижнему регистру, упоминания и ссылки отбрасываются.
func ExtractTrendingTopics(messages []domain.Message, limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	counts := make(map[string]int)
	for _, msg := range messages {
		for _, raw := range strings.Fields(msg.Text) {
			if strings.HasPrefix(raw, "@") || strings.HasPrefix(raw, "http") || strings.HasPrefix(raw, "/") {
				continue
			}
			word := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			}))
			if len([]rune(word)) < minTopicRunes {
				continue
			}
			if _, skip := stopWords[word]; skip {
				continue
			}
			counts[word]++
		}
	}

	words := make([]string, 0, len(counts))
	for word, n := range counts {
		if n >= 2 {
			words = append(words, word)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}
