package schedule

import (
	"slices"
	"strings"
)

type ClassifiedRecipient struct {
	Email      string
	Domain     string
	IsExternal bool
}

// Classify 根据租户的内部域名单给收件人打上内外部标记。
// 没有配置域名单或者配置不合法时，一律按外部处理（宁可标错也不放过）。
func Classify(emails []string, allowedDomains []string) []ClassifiedRecipient {
	allowed := normalizeDomains(allowedDomains)

	result := make([]ClassifiedRecipient, 0, len(emails))
	for _, email := range emails {
		d := emailDomain(email)
		result = append(result, ClassifiedRecipient{
			Email:      email,
			Domain:     d,
			IsExternal: len(allowed) == 0 || d == "" || !slices.Contains(allowed, d),
		})
	}

	return result
}

// Diff 比较收件人变更前后的外部收件人，产出审计用的增删列表
func Diff(before []ClassifiedRecipient, after []ClassifiedRecipient) (addedExternal []string, removedExternal []string) {
	addedExternal = make([]string, 0)
	removedExternal = make([]string, 0)

	for _, r := range after {
		if r.IsExternal && !containsEmail(before, r.Email) {
			addedExternal = append(addedExternal, r.Email)
		}
	}
	for _, r := range before {
		if r.IsExternal && !containsEmail(after, r.Email) {
			removedExternal = append(removedExternal, r.Email)
		}
	}

	return addedExternal, removedExternal
}

func containsEmail(list []ClassifiedRecipient, email string) bool {
	for _, r := range list {
		if strings.EqualFold(r.Email, email) {
			return true
		}
	}
	return false
}

// normalizeDomains 清洗域名单。只要有一项不像域名，就认为整个配置不可信，
// 返回空名单让所有收件人都按外部处理
func normalizeDomains(domains []string) []string {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(d), "@")))
		if d == "" || strings.ContainsAny(d, "@ ") || !strings.Contains(d, ".") {
			return nil
		}
		normalized = append(normalized, d)
	}
	return normalized
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
