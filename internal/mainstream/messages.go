package mainstream

// RateLimitMessage is the upstream rate-limit notice.
const RateLimitMessage = "当前ip并发查询限制为1次,每秒钟查询限制为1次,每分钟查询限制为10次,限制条件触发"

// RateLimitTranslation is the English rendering of RateLimitMessage.
const RateLimitTranslation = "Rate limit triggered: 1 concurrent, 1 per second, 10 per minute."

var translations = map[string]string{
	RateLimitMessage: RateLimitTranslation,
}

// TranslateMessage maps known upstream messages to English. Unknown messages
// are returned unchanged.
func TranslateMessage(message string) string {
	if translated, ok := translations[message]; ok {
		return translated
	}
	return message
}
